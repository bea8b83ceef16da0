package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Common errors.
var (
	// ErrTargetNotFound indicates no target with the requested name exists.
	ErrTargetNotFound = errors.New("target not found")

	// ErrInputNotFound indicates a target has no usable xtream input.
	ErrInputNotFound = errors.New("no xtream input for target")

	// ErrXtreamCredentialsRequired indicates missing Xtream credentials.
	ErrXtreamCredentialsRequired = errors.New("username and password are required for xtream inputs")

	// ErrNoXtreamOutput indicates the target does not publish the Xtream API.
	ErrNoXtreamOutput = errors.New("target has no xtream output")

	// ErrRefreshInProgress indicates a refresh of the same target is already running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// ErrorKind classifies processing errors by how they are surfaced.
type ErrorKind int

const (
	// ErrorKindInfo covers configuration-shape problems; logged only.
	ErrorKindInfo ErrorKind = iota
	// ErrorKindNotify covers malformed upstream content; logged and sent to the operator.
	ErrorKindNotify
)

// String returns the kind name.
func (k ErrorKind) String() string {
	if k == ErrorKindNotify {
		return "notify"
	}
	return "info"
}

// ProcessingError is produced while refreshing one input or target. It never
// aborts the refresh of other inputs.
type ProcessingError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// InfoErrorf builds an informational processing error.
func InfoErrorf(format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: ErrorKindInfo, Message: fmt.Sprintf(format, args...)}
}

// NotifyError wraps err as a notify-worthy processing error.
func NotifyError(err error, format string, args ...any) *ProcessingError {
	return &ProcessingError{Kind: ErrorKindNotify, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsNotify reports whether err carries a notify-worthy processing error.
func IsNotify(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe) && pe.Kind == ErrorKindNotify
}

// NotifyMessages joins the messages of all notify-worthy errors, one per line.
func NotifyMessages(errs []error) string {
	var lines []string
	for _, err := range errs {
		if IsNotify(err) {
			lines = append(lines, err.Error())
		}
	}
	return strings.Join(lines, "\n")
}

const truncationMarker = "..."

// TruncateMessage clips msg to at most limit bytes without splitting a rune.
// A limit of zero or less disables truncation.
func TruncateMessage(msg string, limit int) string {
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	cut := limit - len(truncationMarker)
	if cut <= 0 {
		return truncationMarker[:limit]
	}
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + truncationMarker
}
