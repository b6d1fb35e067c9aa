package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAttemptInProgress = errors.New("a payment attempt is already in progress for this cart")
	ErrAlreadyPaid       = errors.New("this cart has already been paid for")
	ErrNoActiveAttempt   = errors.New("no payment attempt is in progress")
	ErrStaleCallback     = errors.New("callback does not belong to the active payment attempt")
	ErrInvalidTransition = errors.New("invalid checkout transition")
)

// InputError lists buyer fields that must be fixed before paying.
type InputError struct {
	Fields map[string]string
}

func (e *InputError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid buyer input: %s", strings.Join(names, ", "))
}

// FailureKind says why an attempt did not succeed
type FailureKind string

const (
	FailureValidation         FailureKind = "validation"
	FailureCatalog            FailureKind = "catalog"
	FailureWidgetLoad         FailureKind = "widget_load"
	FailureProcessor          FailureKind = "processor_failure"
	FailureVerification       FailureKind = "verification_failed"
	FailureAmountMismatch     FailureKind = "amount_mismatch"
	FailureUnknownOrder       FailureKind = "unknown_order"
	FailureServiceUnavailable FailureKind = "service_unavailable"
)

// Failure is what the buyer is told when an attempt ends in Failed.
type Failure struct {
	Kind    FailureKind
	Message string
	Details map[string]string
	// Retryable means the buyer may simply try again.
	Retryable bool
	// ContactSupport means money may have moved; retrying blindly is wrong.
	ContactSupport bool
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %s", f.Kind, f.Message) }
