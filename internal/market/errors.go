package market

import (
	"errors"
	"fmt"
)

// ErrConnectionLost marks an upstream connection that failed to open or dropped
// mid-stream. Adapters wrap it; the supervisor reconnects.
var ErrConnectionLost = errors.New("connection lost")

// ErrSubscriberOverflow describes a subscriber whose buffer was full. The hub
// never returns it; overflow only shows up in drop counters.
var ErrSubscriberOverflow = errors.New("subscriber overflow")

// NormalizationReason classifies why a raw record could not be normalized.
type NormalizationReason int

const (
	UnknownShape NormalizationReason = iota
	BadNumber
	MissingField
)

// String returns a string representation of the reason.
func (r NormalizationReason) String() string {
	switch r {
	case UnknownShape:
		return "unknown shape"
	case BadNumber:
		return "bad number"
	case MissingField:
		return "missing field"
	default:
		return "unknown normalization error"
	}
}

// NormalizationError is returned for a single undecodable record. It is never
// fatal to the pipeline.
type NormalizationError struct {
	Reason NormalizationReason
	Stream string
	Detail string
	Err    error
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("normalize %s: %s", e.Stream, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// NewNormalizationError builds a NormalizationError.
func NewNormalizationError(reason NormalizationReason, stream, detail string, err error) *NormalizationError {
	return &NormalizationError{Reason: reason, Stream: stream, Detail: detail, Err: err}
}

// ConfigurationError rejects a configuration that would make classification
// ambiguous. It is the only error allowed to stop the process, and only at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Message)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
