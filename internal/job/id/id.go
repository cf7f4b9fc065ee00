// Package id provides unique identifier generation for jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// prefix marks generated identifiers as job IDs.
const prefix = "job-"

// New creates a new unique job ID.
// Format: job-<uuid>
// Example: job-9f1c2d4e-8a3b-4c5d-9e6f-7a8b9c0d1e2f
func New() string {
	return prefix + uuid.NewString()
}

// Valid reports whether s is a well-formed job ID.
func Valid(s string) bool {
	raw, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}
