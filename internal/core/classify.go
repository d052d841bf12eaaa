package core

import (
	"errors"
	"strings"
)

// ErrorCategory is the closed taxonomy every transport fault collapses into.
// Callers never see raw SDK error text.
type ErrorCategory string

const (
	CategoryPermissionDenied   ErrorCategory = "permission-denied"
	CategoryInvalidCredentials ErrorCategory = "invalid-credentials"
	CategoryRoomUnavailable    ErrorCategory = "room-unavailable"
	CategoryNetworkError       ErrorCategory = "network-error"
	CategoryUnknown            ErrorCategory = "unknown"
)

// userMessages holds the single canonical user-facing string per category.
// Defined once; call sites never re-derive them.
var userMessages = map[ErrorCategory]string{
	CategoryPermissionDenied:   "Microphone access was denied. Check your audio permissions and try again.",
	CategoryInvalidCredentials: "The session credentials were rejected. Please start a new conversation.",
	CategoryRoomUnavailable:    "The conversation room is no longer available. Please start a new conversation.",
	CategoryNetworkError:       "A network problem interrupted the conversation. Check your connection and try again.",
	CategoryUnknown:            "Something went wrong with the conversation. Please try again.",
}

func (c ErrorCategory) UserMessage() string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// categoryKeywords is evaluated in declaration order; the first category with
// a matching keyword wins, so a message containing both "network" and
// "permission" resolves deterministically to PermissionDenied.
var categoryKeywords = []struct {
	cat  ErrorCategory
	keys []string
}{
	{CategoryPermissionDenied, []string{
		"permission", "denied", "not allowed", "forbidden", "mic access", "microphone access",
	}},
	{CategoryInvalidCredentials, []string{
		"invalid token", "invalid credential", "credential", "unauthorized", "unauthenticated",
		"authentication", "bad token", "malformed token", "invalid key", "room url",
	}},
	{CategoryRoomUnavailable, []string{
		"expired", "not found", "no such room", "does not exist", "room is full",
		"room full", "unavailable", "room deleted", "meeting has ended",
	}},
	{CategoryNetworkError, []string{
		"network", "timeout", "timed out", "connection refused", "connection reset",
		"connection closed", "unreachable", "ice failed", "ice connection", "dns",
		"socket", "broken pipe", "eof",
	}},
}

// Classify maps raw transport error text to one category. Pure and total:
// no side effects, never panics, unmatched input is CategoryUnknown.
func Classify(raw string) ErrorCategory {
	msg := strings.ToLower(raw)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keys {
			if strings.Contains(msg, kw) {
				return entry.cat
			}
		}
	}
	return CategoryUnknown
}

// CategoryError is the only error shape the session layer surfaces for
// transport faults. Error() is the canonical user message; the raw text and
// cause stay available for logs.
type CategoryError struct {
	Category ErrorCategory
	Raw      string
	Cause    error
}

func (e *CategoryError) Error() string { return e.Category.UserMessage() }

func (e *CategoryError) Unwrap() error { return e.Cause }

func NewCategoryError(cat ErrorCategory, raw string) *CategoryError {
	return &CategoryError{Category: cat, Raw: raw}
}

// ClassifyError wraps err into a CategoryError. Already-classified errors
// pass through unchanged so the category chosen closest to the fault wins.
func ClassifyError(err error) *CategoryError {
	if err == nil {
		return nil
	}
	var ce *CategoryError
	if errors.As(err, &ce) {
		return ce
	}
	return &CategoryError{Category: Classify(err.Error()), Raw: err.Error(), Cause: err}
}

// CategoryOf extracts the category from err, or CategoryUnknown when err was
// never classified.
func CategoryOf(err error) ErrorCategory {
	var ce *CategoryError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}
