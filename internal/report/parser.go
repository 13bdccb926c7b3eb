// Package report parses the QPS report payload returned by the metering API.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BucketSeconds is the fixed aggregation interval of the upstream report.
const BucketSeconds = 300

// MalformedReportError reports a payload whose envelope could not be
// interpreted.
type MalformedReportError struct {
	Reason string
	Err    error
}

func (e *MalformedReportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed report: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed report: %s", e.Reason)
}

func (e *MalformedReportError) Unwrap() error { return e.Err }

type envelope struct {
	Data struct {
		CSV *string `json:"csv"`
	} `json:"data"`
}

// ParseRates converts a raw report body into per-bucket query rates.
//
// The body is a JSON envelope carrying a CSV table at data.csv. Column 1 of
// each row holds the query count for one bucket; rows whose column 1 is
// absent or non-numeric are skipped. Counts become queries-per-second via
// truncating division by BucketSeconds. The first surviving sample is an
// upstream header artifact and is dropped by position, whatever its value.
func ParseRates(body []byte) ([]int64, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MalformedReportError{Reason: "cannot decode report envelope", Err: err}
	}
	if env.Data.CSV == nil {
		return nil, &MalformedReportError{Reason: "report envelope has no data.csv"}
	}

	r := csv.NewReader(strings.NewReader(*env.Data.CSV))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rates []int64
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A damaged row gets the same treatment as an unparsable count.
			continue
		}
		if len(row) < 2 {
			continue
		}
		count, err := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
		if err != nil {
			continue
		}
		rates = append(rates, count/BucketSeconds)
	}

	// Positional header drop, guarded so an empty report stays empty.
	if len(rates) > 0 {
		rates = rates[1:]
	}
	return rates, nil
}
