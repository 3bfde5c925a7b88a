package domain

// Status is the outcome of one extraction.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record is a finalized set of extracted fields keyed by field name.
type Record map[string]any

// Result is what callers of an extraction receive. Exactly one of Record or
// the ErrorCode/Message pair is set, matching Status.
type Result struct {
	Status    Status `json:"status"`
	Record    Record `json:"record,omitempty"`
	ErrorCode Kind   `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
	Reason    Reason `json:"reason,omitempty"`
	Field     string `json:"field,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(record Record) Result {
	return Result{Status: StatusSucceeded, Record: record}
}

// Failed builds a failed Result from a tagged error.
func Failed(err *Error) Result {
	return Result{
		Status:    StatusFailed,
		ErrorCode: err.Kind,
		Message:   err.Message,
		Reason:    err.Reason,
		Field:     err.Field,
	}
}

// OK reports whether the extraction succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSucceeded
}

// Err returns the failure as a *Error, or nil on success.
func (r Result) Err() *Error {
	if r.OK() {
		return nil
	}
	return &Error{Kind: r.ErrorCode, Message: r.Message, Reason: r.Reason, Field: r.Field}
}
