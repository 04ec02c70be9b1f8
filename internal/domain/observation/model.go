package observation

import (
	"fmt"
	"strings"
	"time"
)

// Coordinates is a resolved position.
type Coordinates struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// String formats the position the way it is shown when no place name is known.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// ImageData is one uploaded photo. URL holds a data-encoded bitmap.
type ImageData struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// Observation is one biodiversity sighting.
// JSON field names match the persisted layout.
type Observation struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"projectId"`
	Date        time.Time    `json:"date"`
	Species     string       `json:"species"`
	Location    string       `json:"location"`
	Coordinates *Coordinates `json:"coordinates"`
	Images      []ImageData  `json:"images"`
	Habitat     string       `json:"habitat,omitempty"`
	Weather     string       `json:"weather,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   *int64       `json:"updatedAt,omitempty"`
}

// Normalize trims the species name and stores an empty tag list as absent,
// so a saved record reloads unchanged.
func (o *Observation) Normalize() {
	o.Species = strings.TrimSpace(o.Species)
	if len(o.Tags) == 0 {
		o.Tags = nil
	}
}

// Patch holds the fields of a partial observation update. Nil fields are left untouched.
type Patch struct {
	ProjectID   *string      `json:"projectId,omitempty"`
	Date        *time.Time   `json:"date,omitempty"`
	Species     *string      `json:"species,omitempty"`
	Location    *string      `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Images      *[]ImageData `json:"images,omitempty"`
	Habitat     *string      `json:"habitat,omitempty"`
	Weather     *string      `json:"weather,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
	Tags        *[]string    `json:"tags,omitempty"`
}

// Apply merges the patch into obs.
func (p Patch) Apply(obs *Observation) {
	if p.ProjectID != nil {
		obs.ProjectID = *p.ProjectID
	}
	if p.Date != nil {
		obs.Date = *p.Date
	}
	if p.Species != nil {
		obs.Species = *p.Species
	}
	if p.Location != nil {
		obs.Location = *p.Location
	}
	if p.Coordinates != nil {
		c := *p.Coordinates
		if c.Accuracy != nil {
			a := *c.Accuracy
			c.Accuracy = &a
		}
		obs.Coordinates = &c
	}
	if p.Images != nil {
		obs.Images = append([]ImageData{}, (*p.Images)...)
	}
	if p.Habitat != nil {
		obs.Habitat = *p.Habitat
	}
	if p.Weather != nil {
		obs.Weather = *p.Weather
	}
	if p.Notes != nil {
		obs.Notes = *p.Notes
	}
	if p.Tags != nil {
		obs.Tags = append([]string(nil), (*p.Tags)...)
	}
	obs.Normalize()
}
