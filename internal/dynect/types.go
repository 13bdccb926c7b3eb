package dynect

import "time"

// Window is a reporting interval in epoch seconds.
type Window struct {
	Start int64
	End   int64
}

// NewWindow returns the trailing window of periodSeconds ending at now.
func NewWindow(now time.Time, periodSeconds int64) Window {
	return Window{Start: now.Unix() - periodSeconds, End: now.Unix()}
}

// Report is a fetched report body plus fetch metadata.
type Report struct {
	Body     []byte
	Attempts int // redirected GETs issued before the final response
}

type sessionRequest struct {
	CustomerName string `json:"customer_name"`
	UserName     string `json:"user_name"`
	Password     string `json:"password"`
}

type sessionResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

type reportRequest struct {
	StartTS int64 `json:"start_ts"`
	EndTS   int64 `json:"end_ts"`
}
