// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix starts every generated job ID.
const Prefix = "cut-"

// Generate creates a new unique job ID.
// Format: cut-<timestamp>-<random>
// Example: cut-1701432000-a1b2c3d4e5f6
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d-%s", Prefix, time.Now().Unix(), random[:12])
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return false
	}
	ts, random, ok := strings.Cut(rest, "-")
	if !ok || ts == "" || len(random) != 12 {
		return false
	}
	for _, r := range ts + random {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
