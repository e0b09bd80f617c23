package runner

import "strings"

// Verdict is a classified outcome: the status candidate plus estimated
// pass/fail/error counts extracted from the captured output.
type Verdict struct {
	Status Status
	Passed int
	Failed int
	Errors int
}

// Classifier turns an exit code and captured output into a Verdict.
// Implementations may only ever downgrade a zero-exit PASS candidate to
// FAIL based on the output — never upgrade a non-zero exit to PASS.
// ERROR results are produced upstream and never reach the classifier.
type Classifier interface {
	Classify(exitCode int, output string) Verdict
}

// MarkerClassifier estimates counts by counting fixed textual markers in
// the output, the way a human skims a pytest summary line.
//
// This is an approximation by design: plain substring counting, not
// structured parsing. Output that incidentally contains the marker words
// outside a report line skews the counts. Swap in a different Classifier
// (e.g. one consuming a machine-readable report) if exact numbers matter.
type MarkerClassifier struct{}

const (
	markerPassed = " passed"
	markerFailed = " failed"
	markerError  = " error"
)

// Classify derives the verdict. A zero exit code is a PASS candidate and a
// non-zero exit a FAIL candidate; when the exit code says PASS but the
// output shows any failed or error count, the verdict is downgraded to
// FAIL. The scan never moves a verdict in the other direction.
func (MarkerClassifier) Classify(exitCode int, output string) Verdict {
	v := Verdict{
		Passed: strings.Count(output, markerPassed),
		Failed: strings.Count(output, markerFailed),
		Errors: strings.Count(output, markerError),
	}

	if exitCode == 0 {
		v.Status = StatusPass
	} else {
		v.Status = StatusFail
	}

	if v.Status == StatusPass && (v.Failed > 0 || v.Errors > 0) {
		v.Status = StatusFail
	}
	return v
}
