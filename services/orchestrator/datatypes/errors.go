// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================
//
// Four families, matching how the pipeline reacts:
//
//   - validation errors: bad caller input. Surfaced immediately, never retried.
//   - transient provider errors: retried with bounded attempts by the
//     embedding and llm clients; exhaustion yields a classified error there.
//   - terminal provider errors: never retried.
//   - not-found errors: absent or foreign-owned resources. Surfaced as
//     lookup failures, never silently treated as empty results.
//
// Best-effort failures (cache, rerank model calls, async embedding) are not
// represented here: they are caught and logged at the call site and degrade
// to a safe fallback by design of the components that own them.

// ErrEmptyMessage rejects blank or whitespace-only user messages before any
// provider call is made.
var ErrEmptyMessage = errors.New("message is empty")

// ValidationError reports bad caller input (limit < 1, wrong vector
// dimension, empty text). Always terminal for the operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports a resource that is absent or owned by a different
// user. The two cases are deliberately indistinguishable to the caller so
// that existence of another user's session cannot be probed.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFoundError builds a NotFoundError for the given resource.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
