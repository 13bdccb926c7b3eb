package api

import (
	"time"
)

// CheckSummary contains summary information about a check
type CheckSummary struct {
	ID          string  `json:"id"`
	Description string  `json:"description,omitempty"`
	Customer    string  `json:"customer"`
	Period      string  `json:"period"`
	Warning     float64 `json:"warning"`
	Critical    float64 `json:"critical"`
	Interval    string  `json:"interval,omitempty"`
}

// CheckListResponse represents a list of checks
type CheckListResponse struct {
	Checks []CheckSummary `json:"checks"`
}

// CheckDetail contains the full definition of a check. Credential material
// is limited to the name of the password environment variable.
type CheckDetail struct {
	ID                 string  `json:"id"`
	Description        string  `json:"description,omitempty"`
	Endpoint           string  `json:"endpoint,omitempty"`
	Customer           string  `json:"customer"`
	Username           string  `json:"username"`
	PasswordEnv        string  `json:"passwordEnv,omitempty"`
	Period             string  `json:"period"`
	Warning            float64 `json:"warning"`
	Critical           float64 `json:"critical"`
	MaxRetries         int     `json:"maxRetries"`
	RetryDelay         string  `json:"retryDelay,omitempty"`
	Interval           string  `json:"interval,omitempty"`
	Timeout            string  `json:"timeout,omitempty"`
	InsecureSkipVerify bool    `json:"insecureSkipVerify,omitempty"`
}

// StatusResponse represents the latest run state of a check
type StatusResponse struct {
	CheckID     string    `json:"checkID"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	P95         float64   `json:"p95,omitempty"`
	Samples     int       `json:"samples,omitempty"`
	RunID       string    `json:"runID,omitempty"`
	WindowStart int64     `json:"windowStart,omitempty"`
	WindowEnd   int64     `json:"windowEnd,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Stale       bool      `json:"stale"`
}

// StatusListResponse represents the run states of all checks
type StatusListResponse struct {
	Statuses []StatusResponse `json:"statuses"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready        bool     `json:"ready"`
	ChecksLoaded int      `json:"checksLoaded"`
	Reasons      []string `json:"reasons,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
