package domain

import (
	"fmt"
	"strings"
)

// Error types for consistent error handling across the analytics pipeline.

// maxListedIDs bounds how many offending ids an error message spells out.
const maxListedIDs = 10

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external data source.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a single invalid option or field.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidRecords indicates that part of a batch failed input validation.
// The whole batch is rejected; IDs lists every offending record.
type ErrInvalidRecords struct {
	Stage  string
	Reason string
	IDs    []string
}

func (e *ErrInvalidRecords) Error() string {
	ids := e.IDs
	suffix := ""
	if len(ids) > maxListedIDs {
		suffix = fmt.Sprintf(" (+%d more)", len(ids)-maxListedIDs)
		ids = ids[:maxListedIDs]
	}
	return fmt.Sprintf("%s: %d invalid record(s): %s: [%s]%s",
		e.Stage, len(e.IDs), e.Reason, strings.Join(ids, ", "), suffix)
}

// ErrNotConverged indicates the optimizer stopped without reaching a stable
// maximum. Predictions from such a fit are meaningless.
type ErrNotConverged struct {
	Model      string
	Iterations int
	Status     string
	Err        error
}

func (e *ErrNotConverged) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s fit did not converge after %d iterations (%s): %v", e.Model, e.Iterations, e.Status, e.Err)
	}
	return fmt.Sprintf("%s fit did not converge after %d iterations (%s)", e.Model, e.Iterations, e.Status)
}

func (e *ErrNotConverged) Unwrap() error {
	return e.Err
}

// ErrDegeneratePopulation indicates a metric has too few distinct values to
// form the requested number of equal-population buckets.
type ErrDegeneratePopulation struct {
	Metric   string
	Buckets  int
	Distinct int
}

func (e *ErrDegeneratePopulation) Error() string {
	return fmt.Sprintf("cannot split %s into %d equal-population buckets: bin edges collapse (%d distinct values)",
		e.Metric, e.Buckets, e.Distinct)
}

// ErrClassification indicates an RF code outside the segment table.
type ErrClassification struct {
	Code string
}

func (e *ErrClassification) Error() string {
	return fmt.Sprintf("no segment for rf code %q", e.Code)
}
