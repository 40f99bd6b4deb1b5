// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

import (
	"errors"
	"fmt"
	"time"
)

// Component versions are date-stamped strings such as "2026-01-21-v11".
// Compatibility is decided on the leading ISO date alone; the suffix is a
// free-form build tag.

// ErrInvalidVersion indicates a version string without a leading ISO date.
var ErrInvalidVersion = errors.New("invalid version string")

// versionDateLayout is the leading date portion of a version string.
const versionDateLayout = "2006-01-02"

// ParseVersionDate extracts the leading YYYY-MM-DD date from a version
// string.
func ParseVersionDate(version string) (time.Time, error) {
	if len(version) < len(versionDateLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	t, err := time.Parse(versionDateLayout, version[:len(versionDateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return t, nil
}

// VersionCompatible reports whether a sender's version date is at or after
// the minimum compatible version date. Unparseable sender versions are
// incompatible; an unparseable minimum disables the gate.
func VersionCompatible(version, minimum string) bool {
	minDate, err := ParseVersionDate(minimum)
	if err != nil {
		return true
	}
	date, err := ParseVersionDate(version)
	if err != nil {
		return false
	}
	return !date.Before(minDate)
}
