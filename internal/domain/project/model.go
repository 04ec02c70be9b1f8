package project

import "time"

// Project is a named collection scoping observations.
// JSON field names match the persisted layout.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartDate   time.Time `json:"startDate"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   *int64    `json:"updatedAt,omitempty"`
}

// Summary is a lightweight representation for listing
type Summary struct {
	Project
	ObservationCount int  `json:"observationCount"`
	Current          bool `json:"current"`
}

// Patch holds the fields of a partial project update. Nil fields are left untouched.
type Patch struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
}

// Apply merges the patch into proj.
func (p Patch) Apply(proj *Project) {
	if p.Name != nil {
		proj.Name = *p.Name
	}
	if p.Description != nil {
		proj.Description = *p.Description
	}
	if p.StartDate != nil {
		proj.StartDate = *p.StartDate
	}
}
