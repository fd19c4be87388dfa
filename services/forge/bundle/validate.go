// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationResult is the outcome of structural bundle validation.
type ValidationResult struct {
	// Valid is true when no errors were found. Warnings alone do not
	// invalidate a bundle.
	Valid bool `json:"valid"`

	// Errors itemize structural failures.
	Errors []string `json:"errors,omitempty"`

	// Warnings itemize non-fatal oddities.
	Warnings []string `json:"warnings,omitempty"`
}

// structValidator is shared; go-playground validators are safe for
// concurrent use and cache struct metadata.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a bundle for structural completeness: required
// identifiers, well-formed checksums, and consistent entries. The
// bundle is never mutated.
//
// # Inputs
//
//   - b: The bundle to check. Must not be nil.
//
// # Outputs
//
//   - *ValidationResult: Pass/fail plus itemized errors and warnings.
func Validate(b *Bundle) *ValidationResult {
	result := &ValidationResult{Valid: true}
	if b == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "bundle is nil")
		return result
	}

	if err := structValidator.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: failed %q validation", ve.Namespace(), ve.Tag()))
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if len(b.Files) == 0 && len(b.Migrations) == 0 {
		result.Errors = append(result.Errors, "bundle carries no files and no migrations")
	}

	// Checksums must match the content they claim to cover.
	for _, f := range b.Files {
		if f.Checksum != Checksum(f.Content) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("file %s: checksum does not match content", f.Path))
		}
	}
	for _, t := range b.Tests {
		if t.Checksum != Checksum(t.Content) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("test %s: checksum does not match content", t.Path))
		}
	}
	for _, m := range b.Migrations {
		if m.ForwardChecksum != Checksum(m.Forward) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("migration %s: forward checksum does not match", m.ID))
		}
		if m.ReverseChecksum != Checksum(m.Reverse) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("migration %s: reverse checksum does not match", m.ID))
		}
		if m.Reverse == "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("migration %s has no reverse statement", m.ID))
		}
	}

	// Duplicate paths would make application order ambiguous.
	paths := map[string]bool{}
	for _, f := range b.Files {
		if paths[f.Path] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("duplicate file path %s", f.Path))
		}
		paths[f.Path] = true
	}

	if b.Signature == nil {
		result.Warnings = append(result.Warnings, "bundle is unsigned")
	}

	result.Valid = len(result.Errors) == 0
	return result
}
