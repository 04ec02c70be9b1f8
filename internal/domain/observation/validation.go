package observation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// MinSpeciesLength is the shortest accepted species name.
const MinSpeciesLength = 2

// ValidateCreateInput validates fields required to create an observation.
func ValidateCreateInput(obs Observation) error {
	if strings.TrimSpace(obs.ProjectID) == "" {
		return ErrMissingProject
	}
	if err := validateSpecies(obs.Species); err != nil {
		return err
	}
	if obs.Coordinates == nil {
		return ErrMissingCoordinates
	}
	return ValidateCoordinates(*obs.Coordinates)
}

// ValidatePatch validates the fields present in a patch.
func ValidatePatch(p Patch) error {
	if p.ProjectID != nil && strings.TrimSpace(*p.ProjectID) == "" {
		return ErrMissingProject
	}
	if p.Species != nil {
		if err := validateSpecies(*p.Species); err != nil {
			return err
		}
	}
	if p.Coordinates != nil {
		return ValidateCoordinates(*p.Coordinates)
	}
	return nil
}

// ValidateCoordinates rejects positions outside the WGS84 range.
func ValidateCoordinates(c Coordinates) error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return fmt.Errorf("%w: coordinates are not numbers", ErrInvalidInput)
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	return nil
}

func validateSpecies(species string) error {
	if utf8.RuneCountInString(strings.TrimSpace(species)) < MinSpeciesLength {
		return fmt.Errorf("%w: species must be at least %d characters", ErrInvalidInput, MinSpeciesLength)
	}
	return nil
}
