// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// in file paths or subprocess environments. Using these validators prevents
// path traversal and injection through variant names and snapshot slots.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// namePattern matches safe identifiers: variant names, snapshot slots,
// check IDs. Allows letters, digits, dots (v1.2), underscores, hyphens.
// Max length: 64 characters. Must not start with a dot or hyphen.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateName validates an identifier that will appear in a filesystem path.
//
// Valid names:
//   - 1-64 characters
//   - Letters A-Z, a-z and digits 0-9
//   - Dots (.), underscores (_), hyphens (-) after the first character
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateName(variant.Name); err != nil {
//	    return nil, fmt.Errorf("invalid variant name: %w", err)
//	}
//	// Safe to use in a run directory path
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid name: %q (must not contain path traversal sequences)", name)
	}

	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name format: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", name)
	}

	return nil
}

// ValidateNames validates multiple identifiers.
// Returns an error listing all invalid names if any fail validation.
func ValidateNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid names: %v", invalid)
	}
	return nil
}
