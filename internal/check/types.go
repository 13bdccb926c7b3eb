package check

import (
	"time"

	"github.com/dynwatch/dynwatch/internal/dynect"
)

// Result captures one completed check run.
type Result struct {
	RunID    string
	CheckID  string
	Verdict  Verdict
	P95      float64
	Samples  int
	Window   dynect.Window
	Attempts int
	Elapsed  time.Duration

	// LogoutErr records an advisory session teardown failure. It never
	// influences the verdict.
	LogoutErr error
}
