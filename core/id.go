package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID generates a unique identifier.
func NewID() string { return uuid.NewString() }

// NewRunID generates a sortable run identifier: a UTC timestamp plus a short
// random suffix, e.g. "run-20260825-143055-3fa81c2d".
func NewRunID() string {
	return fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
}
