package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Task failure messages and API error bodies carry these codes.
//
// # Domain Errors
//
// Matched with errors.Is / errors.As before any pattern is tried:
//
//	LCK001 - Dataset locked: Another task is already working on this dataset
//	         Action: Wait for it to finish or abort it
//
//	IMP001 - Data import: The file cannot be imported into this dataset
//	         Action: Check that its header matches the dataset columns
//
//	IMP002 - Not sniffable: The file's layout could not be detected
//	         Action: Save it as comma-separated values and upload it again
//
//	IMP003 - Encoding: The file is not valid in the declared encoding
//	         Action: Upload it again and choose the correct encoding
//
//	IMP004 - File too large: The file exceeds the maximum upload size
//	         Action: Split the file and upload the parts separately
//
//	TSK001 - Invalid transition: The task has already finished
//	         Action: Refresh to see its final state
//
//	TSK002 - Too many tasks: All workers stayed busy
//	         Action: Try again when running tasks have finished
//
//	NF001  - Not found: The requested item does not exist
//	         Action: Check the name or id and try again
//
// # Infrastructure Errors
//
// Matched case-insensitively with strings.Contains; the first match wins:
//
//	DB004 - Connection refused   Patterns: "connection refused"
//	DB005 - Connection reset     Patterns: "connection reset"
//	DB006 - Timeout              Patterns: "deadline exceeded", "timeout"
//	DB007 - Deadlock             Patterns: "deadlock"
//	TSK003 - Interrupted         Patterns: "context canceled"
//	IDX001 - Index unavailable   Patterns: "index returned"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error when users report ERR000.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
	Detail  string // Specifics of a domain error, if any
}

type domainError struct {
	match func(error) (string, bool)
	msg   UserMessage
}

func sentinel(target error) func(error) (string, bool) {
	return func(err error) (string, bool) {
		return "", errors.Is(err, target)
	}
}

var domainErrors = []domainError{
	{
		match: sentinel(ErrDatasetLocked),
		msg: UserMessage{
			Message: "Another task is already working on this dataset",
			Action:  "Wait for it to finish or abort it",
			Code:    "LCK001",
		},
	},
	{
		match: func(err error) (string, bool) {
			var e *DataImportError
			if errors.As(err, &e) {
				return e.Reason, true
			}
			return "", false
		},
		msg: UserMessage{
			Message: "The file cannot be imported into this dataset",
			Action:  "Check that its header matches the dataset columns",
			Code:    "IMP001",
		},
	},
	{
		match: func(err error) (string, bool) {
			var e *NotSniffableError
			if errors.As(err, &e) {
				return e.Reason, true
			}
			return "", false
		},
		msg: UserMessage{
			Message: "The file's layout could not be detected",
			Action:  "Save it as comma-separated values and upload it again",
			Code:    "IMP002",
		},
	},
	{
		match: func(err error) (string, bool) {
			var e *EncodingError
			if errors.As(err, &e) {
				return e.Error(), true
			}
			return "", false
		},
		msg: UserMessage{
			Message: "The file is not valid in the declared encoding",
			Action:  "Upload it again and choose the correct encoding",
			Code:    "IMP003",
		},
	},
	{
		match: sentinel(ErrFileTooLarge),
		msg: UserMessage{
			Message: "The file exceeds the maximum upload size",
			Action:  "Split the file and upload the parts separately",
			Code:    "IMP004",
		},
	},
	{
		match: sentinel(ErrInvalidTaskTransition),
		msg: UserMessage{
			Message: "The task has already finished",
			Action:  "Refresh to see its final state",
			Code:    "TSK001",
		},
	},
	{
		match: sentinel(ErrTooManyTasks),
		msg: UserMessage{
			Message: "All workers stayed busy",
			Action:  "Try again when running tasks have finished",
			Code:    "TSK002",
		},
	},
	{
		match: sentinel(ErrNotFound),
		msg: UserMessage{
			Message: "The requested item does not exist",
			Action:  "Check the name or id and try again",
			Code:    "NF001",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to a backend service",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "A backend connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The task was interrupted",
			Action:  "Start it again",
			Code:    "TSK003",
		},
	},
	{
		pattern: "index returned",
		msg: UserMessage{
			Message: "The search index rejected the request",
			Action:  "Please try again or contact support",
			Code:    "IDX001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Domain errors are recognised by type; other errors are matched against
// known patterns, falling back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, de := range domainErrors {
		if detail, ok := de.match(err); ok {
			msg := de.msg
			msg.Detail = detail
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is "Message: detail (Code: XXX). Action", without the detail
// part when there is none.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	if msg.Detail != "" {
		return fmt.Sprintf("%s: %s (Code: %s). %s", msg.Message, msg.Detail, msg.Code, msg.Action)
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
