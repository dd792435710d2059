package core

// error_aggregator.go collects row errors for a run and decides when the run
// has to stop taking rows.
//
// A row is invalid once it has a critical error or has been skipped.
// Termination trips when a fatal error is set, or, under the stop-on-error
// strategy, when the number of critical errors reaches the allowed count.

import (
	"fmt"
	"sort"
	"sync"
)

// Severity classifies a row error.
type Severity int

const (
	// SeverityCritical excludes the row from every later phase.
	SeverityCritical Severity = iota
	// SeverityNotCritical is reported but keeps the row.
	SeverityNotCritical
)

func (s Severity) String() string {
	if s == SeverityNotCritical {
		return "not-critical"
	}
	return "critical"
}

// MarshalText renders the severity in reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText reads a severity written by MarshalText.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "critical":
		*s = SeverityCritical
	case "not-critical":
		*s = SeverityNotCritical
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// RowError is one recorded problem.
type RowError struct {
	RowNum   int       `json:"row"`
	Kind     ErrorKind `json:"kind"`
	Column   string    `json:"column,omitempty"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Code     string    `json:"code,omitempty"`
}

// ErrorAggregator records row errors. It is safe for concurrent readers;
// writes come from the single goroutine running the import.
type ErrorAggregator struct {
	mu sync.RWMutex

	strategy ValidationStrategy
	allowed  int

	errors   []RowError
	invalid  map[int]bool
	skipped  map[int]bool
	critical int
	fatal    error
}

// NewErrorAggregator creates an aggregator for one run.
func NewErrorAggregator(strategy ValidationStrategy, allowedErrors int) *ErrorAggregator {
	if strategy == "" {
		strategy = StrategySkipErrors
	}
	return &ErrorAggregator{
		strategy: strategy,
		allowed:  allowedErrors,
		invalid:  make(map[int]bool),
		skipped:  make(map[int]bool),
	}
}

// AddRowError records kind for a row with the kind's default severity.
// args fill the kind's message template.
func (a *ErrorAggregator) AddRowError(kind ErrorKind, rowNum int, column string, args ...any) {
	msg, severity := formatRowError(kind, args...)
	a.add(RowError{
		RowNum:   rowNum,
		Kind:     kind,
		Column:   column,
		Severity: severity,
		Message:  msg,
		Code:     rowErrorCatalog[kind].msg.Code,
	})
}

func (a *ErrorAggregator) add(e RowError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors = append(a.errors, e)
	if e.Severity == SeverityCritical {
		a.critical++
		a.invalid[e.RowNum] = true
	}
}

// AddFatal records the error that stopped the run. Only the first is kept.
func (a *ErrorAggregator) AddFatal(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fatal == nil {
		a.fatal = err
	}
}

// Fatal returns the error that stopped the run, if any.
func (a *ErrorAggregator) Fatal() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fatal
}

// HasToBeTerminated reports whether remaining rows must be skipped.
func (a *ErrorAggregator) HasToBeTerminated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.fatal != nil {
		return true
	}
	return a.strategy == StrategyStopOnError && a.critical > 0 && a.critical >= a.allowed
}

// IsRowInvalid reports whether the row has a critical error or was skipped.
func (a *ErrorAggregator) IsRowInvalid(rowNum int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.invalid[rowNum] || a.skipped[rowNum]
}

// MarkRowSkipped excludes a row without recording an error.
func (a *ErrorAggregator) MarkRowSkipped(rowNum int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped[rowNum] = true
}

// RowErrors returns the errors recorded for one row.
func (a *ErrorAggregator) RowErrors(rowNum int) []RowError {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []RowError
	for _, e := range a.errors {
		if e.RowNum == rowNum {
			out = append(out, e)
		}
	}
	return out
}

// ErrorsCount returns the number of recorded errors of the given severities,
// or of all severities when none are given.
func (a *ErrorAggregator) ErrorsCount(severities ...Severity) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(severities) == 0 {
		return len(a.errors)
	}
	n := 0
	for _, e := range a.errors {
		for _, s := range severities {
			if e.Severity == s {
				n++
				break
			}
		}
	}
	return n
}

// Report is the user-visible outcome of a run.
type Report struct {
	RowsProcessed    int        `json:"rows_processed"`
	RowsInvalid      int        `json:"rows_invalid"`
	RowsSkipped      int        `json:"rows_skipped"`
	Bunches          int        `json:"bunches"`
	EntitiesCreated  int        `json:"entities_created"`
	EntitiesUpdated  int        `json:"entities_updated"`
	EntitiesDeleted  int        `json:"entities_deleted"`
	CriticalErrors   int        `json:"critical_errors"`
	NotCriticalCount int        `json:"not_critical_errors"`
	Terminated       bool       `json:"terminated"`
	Fatal            string     `json:"fatal,omitempty"`
	Errors           []RowError `json:"errors"`
}

// ErrorsByKind counts errors per kind.
func (r Report) ErrorsByKind() map[ErrorKind]int {
	out := make(map[ErrorKind]int)
	for _, e := range r.Errors {
		out[e.Kind]++
	}
	return out
}

// Report returns the error part of the run report, sorted by row.
func (a *ErrorAggregator) Report() Report {
	a.mu.RLock()
	defer a.mu.RUnlock()

	errs := make([]RowError, len(a.errors))
	copy(errs, a.errors)
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].RowNum < errs[j].RowNum })

	r := Report{
		RowsInvalid:      len(a.invalid),
		RowsSkipped:      len(a.skipped),
		CriticalErrors:   a.critical,
		NotCriticalCount: len(a.errors) - a.critical,
		Errors:           errs,
	}
	if a.fatal != nil {
		r.Fatal = a.fatal.Error()
		r.Terminated = true
	} else if a.strategy == StrategyStopOnError && a.critical > 0 && a.critical >= a.allowed {
		r.Terminated = true
	}
	return r
}
