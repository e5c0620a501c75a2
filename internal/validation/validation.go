// Package validation checks proposed edits against the current mapping
// tree and collects the problems found into a Report.
package validation

import (
	"fmt"
	"strings"

	"mapsync/internal/errors"
)

// Severity ranks a problem. Only errors stop an edit.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Code identifies the rule a problem violates.
type Code string

const (
	CodeEmptyName         Code = "empty_name"
	CodeInvalidIdentifier Code = "invalid_identifier"
	CodeReservedKeyword   Code = "reserved_keyword"
	CodeDuplicateName     Code = "duplicate_name"
	CodeConstructorRename Code = "constructor_rename"
	CodeDocsTooLong       Code = "docs_too_long"
	CodeInvalidText       Code = "invalid_text"
)

// Problem is one finding of a validation pass.
type Problem struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Severity, p.Message)
}

// Report accumulates problems. The zero value is an empty report.
type Report struct {
	problems []Problem
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{}
}

func (r *Report) Add(p Problem) {
	r.problems = append(r.problems, p)
}

// Errorf records an error-severity problem.
func (r *Report) Errorf(code Code, format string, args ...interface{}) {
	r.Add(Problem{Severity: SeverityError, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Warnf records a warning.
func (r *Report) Warnf(code Code, format string, args ...interface{}) {
	r.Add(Problem{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Problems returns the recorded problems in the order found.
func (r *Report) Problems() []Problem {
	return r.problems
}

// CanProceed reports whether no error-severity problem was recorded.
func (r *Report) CanProceed() bool {
	for _, p := range r.problems {
		if p.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Err returns nil when the edit can proceed, otherwise a VALIDATION_FAILED
// error carrying the problems as details.
func (r *Report) Err() error {
	if r.CanProceed() {
		return nil
	}
	msgs := make([]string, 0, len(r.problems))
	for _, p := range r.problems {
		if p.Severity == SeverityError {
			msgs = append(msgs, p.Message)
		}
	}
	return errors.New(errors.ValidationFailed, strings.Join(msgs, "; "), nil).WithDetails(r.problems)
}
