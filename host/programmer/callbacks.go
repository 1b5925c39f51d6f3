package programmer

import "time"

// Phase names reported in Progress.
const (
	PhaseErasing   = "erasing"
	PhaseWriting   = "writing"
	PhaseReading   = "reading"
	PhaseVerifying = "verifying"
	PhaseComplete  = "complete"
)

// Progress describes the state of a long-running operation.
type Progress struct {
	Phase      string
	Done       int // bytes transferred in this phase
	Total      int // bytes in this phase
	Percentage float64
	Elapsed    time.Duration
}

// ProgressCallback is called after each block. Implementations should
// return quickly.
type ProgressCallback func(Progress)

// Logger is the logging interface used by the programmer. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}
