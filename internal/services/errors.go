// Package services defines the error classification shared by every stage of
// the ingestion pipeline. Components tag failures with a sentinel marker so
// callers can route them (retry, quarantine, abort) without string matching.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks recoverable I/O failures (lock probe timeouts,
	// rename retries exhausted). The recovery journal allows a re-attempt
	// on the next startup.
	ErrTransient = errors.New("transient failure")
	// ErrCorruptInput marks files a processor reported as unreadable.
	ErrCorruptInput = errors.New("corrupt input")
	// ErrStoreUnavailable marks transient catalogue read/write failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreCorrupt marks structural catalogue corruption. Fatal at startup.
	ErrStoreCorrupt = errors.New("store corrupt")
	// ErrConfiguration marks invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks inputs that fail contract checks.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups with no matching row.
	ErrNotFound = errors.New("not found")
	// ErrSuperseded marks work abandoned because a newer filesystem event
	// replaced it. Callers exit silently; it is not a failure.
	ErrSuperseded = errors.New("superseded")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
