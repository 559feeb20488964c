package cxerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide between retry, skip, and
// abort without matching on error strings.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is fatal at startup: missing DB URL, bad flag combination.
	KindConfig
	// KindTransientRPC covers network timeouts, 5xx, 429, and reranker 413.
	// The embedding clients retry it locally with backoff before surfacing
	// it; the reranker retries only a 413, once, with the batch split; the job
	// queue requeues a job that fails with it while attempts remain.
	KindTransientRPC
	// KindPermanentRPC covers 4xx other than 429. Aborts the batch.
	KindPermanentRPC
	// KindParse marks a single file or page the chunker could not handle.
	// Logged, counted, skipped; never fatal to a run.
	KindParse
	// KindConsistency covers dimension mismatches, collection-name collisions
	// and dangling catalog references. Fatal to the current operation.
	KindConsistency
	// KindCancelled marks cooperative cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransientRPC:
		return "transient_rpc"
	case KindPermanentRPC:
		return "permanent_rpc"
	case KindParse:
		return "parse"
	case KindConsistency:
		return "consistency"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error carries a kind plus structured context (component, phase, item key).
type Error struct {
	Kind      Kind
	Component string
	Phase     string
	Item      string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Component != "" {
		msg += " " + e.Component
	}
	if e.Phase != "" {
		msg += "/" + e.Phase
	}
	if e.Item != "" {
		msg += " (" + e.Item + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and component context.
func New(kind Kind, component string, err error) *Error {
	return &Error{Kind: kind, Component: component, Err: err}
}

// Newf formats a fresh error of the given kind.
func Newf(kind Kind, component, format string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Err: fmt.Errorf(format, args...)}
}

// WithPhase returns a copy annotated with the pipeline phase.
func (e *Error) WithPhase(phase string) *Error {
	cp := *e
	cp.Phase = phase
	return &cp
}

// WithItem returns a copy annotated with the item key (file path, URL).
func (e *Error) WithItem(item string) *Error {
	cp := *e
	cp.Item = item
	return &cp
}

// KindOf extracts the kind from an error chain. Untagged context
// cancellation maps to KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// IsTransient reports whether the error chain is retryable.
func IsTransient(err error) bool { return KindOf(err) == KindTransientRPC }

// IsCancelled reports whether the error chain represents cooperative
// cancellation.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }
