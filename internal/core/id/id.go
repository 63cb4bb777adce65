// Package id provides GUID helpers for remote list and term identifiers.
// Lists are addressed either by GUID or by title; terms by GUID.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// GUID is a type alias for UUID.
type GUID = uuid.UUID

// EmptyGUID marks a term that does not exist in the term store yet.
const EmptyGUID = "00000000-0000-0000-0000-000000000000"

// IsGUID reports whether s is a GUID, optionally wrapped in braces.
func IsGUID(s string) bool {
	_, err := uuid.Parse(strings.Trim(s, "{}"))
	return err == nil
}

// Normalize returns the canonical lower-case GUID form of s.
// Non-GUID input is returned unchanged.
func Normalize(s string) string {
	u, err := uuid.Parse(strings.Trim(s, "{}"))
	if err != nil {
		return s
	}
	return u.String()
}

// IsEmpty reports whether s is blank or the empty GUID.
func IsEmpty(s string) bool {
	return s == "" || Normalize(s) == EmptyGUID
}

// New generates a random GUID string.
func New() string {
	return uuid.New().String()
}
