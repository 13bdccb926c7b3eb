package checkdef

import (
	"fmt"
	"os"
	"time"
)

// Defaults applied to optional spec fields.
const (
	DefaultMaxRetries = 50
	DefaultRetryDelay = 5 * time.Second
	DefaultInterval   = 5 * time.Minute
)

// Check represents a parsed check definition
type Check struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       Spec     `yaml:"spec"`
}

// Metadata contains check metadata
type Metadata struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
}

// Spec contains the check specification
type Spec struct {
	Endpoint           string     `yaml:"endpoint,omitempty"`
	Customer           string     `yaml:"customer"`
	Username           string     `yaml:"username"`
	Password           string     `yaml:"password,omitempty"`
	PasswordEnv        string     `yaml:"passwordEnv,omitempty"`
	Period             string     `yaml:"period"`
	Thresholds         Thresholds `yaml:"thresholds"`
	MaxRetries         *int       `yaml:"maxRetries,omitempty"`
	RetryDelay         string     `yaml:"retryDelay,omitempty"`
	Interval           string     `yaml:"interval,omitempty"`
	Timeout            string     `yaml:"timeout,omitempty"`
	InsecureSkipVerify bool       `yaml:"insecureSkipVerify,omitempty"`
}

// Thresholds are the warning and critical limits in queries per second.
type Thresholds struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// ResolvedPassword returns the inline secret or, when passwordEnv is set,
// the value of that environment variable.
func (s Spec) ResolvedPassword() (string, error) {
	if s.PasswordEnv != "" {
		v := os.Getenv(s.PasswordEnv)
		if v == "" {
			return "", fmt.Errorf("environment variable %s is empty or unset", s.PasswordEnv)
		}
		return v, nil
	}
	if s.Password == "" {
		return "", fmt.Errorf("no password or passwordEnv configured")
	}
	return s.Password, nil
}

// EffectiveMaxRetries returns maxRetries or the default attempt budget.
func (s Spec) EffectiveMaxRetries() int {
	if s.MaxRetries != nil {
		return *s.MaxRetries
	}
	return DefaultMaxRetries
}

// EffectiveRetryDelay returns the parsed retryDelay or the default.
func (s Spec) EffectiveRetryDelay() (time.Duration, error) {
	if s.RetryDelay == "" {
		return DefaultRetryDelay, nil
	}
	return ParseDuration(s.RetryDelay)
}

// EffectiveInterval returns the parsed scheduling interval or the default.
func (s Spec) EffectiveInterval() (time.Duration, error) {
	if s.Interval == "" {
		return DefaultInterval, nil
	}
	return ParseDuration(s.Interval)
}

// EffectiveTimeout returns the parsed per-run ceiling, or zero when no
// ceiling is configured.
func (s Spec) EffectiveTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	return ParseDuration(s.Timeout)
}

// CheckWithFile pairs a check with its source file path
type CheckWithFile struct {
	Check *Check
	File  string
}

// ValidationError represents a validation error for a specific file
type ValidationError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface
func (e ValidationError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}
