package project

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinNameLength is the shortest accepted project name.
const MinNameLength = 3

// ValidateName checks a project name at the input boundary.
func ValidateName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < MinNameLength {
		return fmt.Errorf("%w: name must be at least %d characters", ErrInvalidInput, MinNameLength)
	}
	return nil
}

// ValidatePatch checks the fields present in a patch.
func ValidatePatch(p Patch) error {
	if p.Name != nil {
		return ValidateName(*p.Name)
	}
	return nil
}
