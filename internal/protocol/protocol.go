package protocol

import (
	"fmt"
	"time"
)

// Terminal outcome statuses.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRejected = "rejected"
	StatusTimedOut = "timed_out"
)

// Reason codes attached to non-successful outcomes.
const (
	ReasonUnknownCapability   = "unknown_capability"
	ReasonLowConfidence       = "low_confidence"
	ReasonMissingArgument     = "missing_argument"
	ReasonInvalidArgumentType = "invalid_argument_type"
	ReasonInvalidArgument     = "invalid_argument"
	ReasonRateLimited         = "rate_limited"
	ReasonGuardError          = "guard_error"
	ReasonInterpreterError    = "interpreter_error"
	ReasonBackendError        = "backend_error"
	ReasonCanceled            = "canceled"
	ReasonTimeout             = "timeout"
)

// Outcome is the terminal result of one submitted utterance.
type Outcome struct {
	// Status is one of the Status* constants.
	Status string `json:"status"`
	// Reason is a machine-readable code, empty on success.
	Reason string `json:"reason,omitempty"`
	// Capability is the resolved capability name, if any.
	Capability string `json:"capability,omitempty"`
	// Argument names the offending argument for argument rejections.
	Argument string `json:"argument,omitempty"`
	// Result is the capability-specific payload on success.
	Result any `json:"result,omitempty"`
	// Error is the technical error detail, present iff Status is not success.
	Error string `json:"error,omitempty"`
	// Message is the localized human-readable summary.
	Message string `json:"message,omitempty"`
	// Sequence is the interaction record id.
	Sequence uint64 `json:"sequence"`
	// StartedAt is when the utterance was accepted.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the terminal state was reached.
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Record is the durable, append-only row written for every dispatch attempt.
type Record struct {
	Sequence   uint64    `json:"sequence"`
	Session    string    `json:"session"`
	Timestamp  time.Time `json:"timestamp"`
	RawText    string    `json:"raw_text"`
	Capability string    `json:"capability,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Rejection describes why an utterance was refused before any side effect.
type Rejection struct {
	// Reason is one of the Reason* constants.
	Reason string
	// Argument names the offending argument, if any.
	Argument string
	// Detail is a human-readable explanation.
	Detail string
}

// Error implements error.
func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Reason
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Reject builds a Rejection with a formatted detail.
func Reject(reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// WithRejection returns o turned into a rejected outcome finished at.
func (o Outcome) WithRejection(r *Rejection, at time.Time) Outcome {
	o.Status = StatusRejected
	o.Reason = r.Reason
	o.Argument = r.Argument
	o.Error = r.Error()
	o.Result = nil
	if o.StartedAt.IsZero() {
		o.StartedAt = at
	}
	o.FinishedAt = at
	return o
}
