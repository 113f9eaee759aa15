// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

// ErrorPrefix marks the terminal failure element of a stream.
const ErrorPrefix = "Error: "

// Error variables for common provider failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient credits.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrEmptyRequest indicates a request without messages.
	ErrEmptyRequest = errors.New("request has no messages")

	// ErrStreamConsumed indicates a second iteration over a single-pass stream.
	ErrStreamConsumed = errors.New("stream already consumed")

	// ErrUnknownFailure describes a failure sentinel that carried no text.
	ErrUnknownFailure = errors.New("unknown provider failure")

	// ErrCancelled indicates the caller cancelled the turn.
	ErrCancelled = errors.New("request cancelled")
)

// ProviderError is a non-2xx response that maps to no specific sentinel.
type ProviderError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (HTTP %d): %s", e.Status, e.Message)
}

// classify converts SDK and transport errors into this package's errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	msg := strings.TrimSpace(apiErr.Message)
	var sentinel error
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		sentinel = ErrAuthFailed
	case http.StatusPaymentRequired:
		sentinel = ErrInsufficientCredits
	case http.StatusNotFound:
		sentinel = ErrModelNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &ProviderError{Code: apiErr.Code, Message: msg, Status: apiErr.StatusCode}
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// ErrorText renders err as the terminal stream element.
func ErrorText(err error) string {
	return ErrorPrefix + classify(err).Error()
}

// IsErrorText reports whether a stream element is the failure sentinel.
func IsErrorText(s string) bool {
	return strings.HasPrefix(s, ErrorPrefix)
}

// ErrorDescription strips ErrorPrefix from a failure element.
func ErrorDescription(s string) string {
	return strings.TrimPrefix(s, ErrorPrefix)
}
