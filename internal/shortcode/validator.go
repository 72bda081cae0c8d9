package shortcode

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MinCodeLength = 3
	MaxCodeLength = 20
)

var (
	ErrInvalidFormat = errors.New("invalid shortcode format")
	ErrReservedCode  = errors.New("shortcode is reserved")
	ErrCodeTaken     = errors.New("shortcode is already in use")
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedCodes are routing-critical names that are never assignable,
// whether user-supplied or generated.
var reservedCodes = map[string]struct{}{
	"api":     {},
	"health":  {},
	"docs":    {},
	"swagger": {},
	"stats":   {},
	"shorten": {},
	"sweep":   {},
	"auth":    {},
	"admin":   {},
	"static":  {},
	"v1":      {},
	"v2":      {},
}

// Normalize lowercases a code. Codes are case-normalized everywhere: at
// creation, lookup and deletion.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ValidateFormat checks length and charset of a code.
func ValidateFormat(code string) error {
	if len(code) < MinCodeLength || len(code) > MaxCodeLength {
		return fmt.Errorf("%w: length must be between %d and %d characters", ErrInvalidFormat, MinCodeLength, MaxCodeLength)
	}
	if !codePattern.MatchString(code) {
		return fmt.Errorf("%w: only letters, digits, hyphen and underscore are allowed", ErrInvalidFormat)
	}
	return nil
}

// IsReserved checks membership in the fixed reserved-word set,
// case-insensitively.
func IsReserved(code string) bool {
	_, ok := reservedCodes[Normalize(code)]
	return ok
}

// CheckAvailability fails if the code is reserved or already in use. Existing
// use includes soft-deleted records: issued codes are permanently reserved to
// avoid stale-link ambiguity. This pre-check is advisory only; the insert
// itself still relies on the store's unique-key enforcement for race safety.
func CheckAvailability(ctx context.Context, checker CodeChecker, code string) error {
	if IsReserved(code) {
		return ErrReservedCode
	}

	exists, err := checker.CodeExists(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to check code availability: %w", err)
	}
	if exists {
		return ErrCodeTaken
	}

	return nil
}
