package runner

import "fmt"

// Status is the overall verdict of a test run.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
)

// Result is the structured outcome returned to the caller. It is created
// fresh per run, never mutated after return, and never persisted here —
// storing it is the caller's concern.
//
// Message is set only for ERROR results and describes what kept the tests
// from running; it is never a test assertion failure.
type Result struct {
	Status  Status `json:"status"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Errors  int    `json:"errors"`
	Output  string `json:"output"`
	Message string `json:"message,omitempty"`
}

// errorResult builds an ERROR result with empty output.
func errorResult(format string, args ...any) Result {
	return Result{
		Status:  StatusError,
		Message: fmt.Sprintf(format, args...),
	}
}
