// Package export renders observations as downloadable JSON or CSV artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/biodata/internal/domain/observation"
)

// Format defines the output format for exports.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat parses a string to Format. "tabular" is accepted as an alias for CSV.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, true
	case "csv", "tabular":
		return FormatCSV, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type of the artifact.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Columns is the fixed header of the tabular export.
var Columns = []string{"ID", "Date", "Species", "Location", "Latitude", "Longitude", "Habitat", "Weather", "Notes", "Tags"}

// Artifact is a rendered export ready to be saved or downloaded.
type Artifact struct {
	FileName    string
	ContentType string
	Format      Format
	Count       int
	Data        []byte
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName builds "{project_name}_{YYYY-MM-DD}.{ext}" with the UTC date.
func FileName(projectName string, f Format, now time.Time) string {
	name := whitespace.ReplaceAllString(strings.TrimSpace(projectName), "_")
	return fmt.Sprintf("%s_%s.%s", name, now.UTC().Format("2006-01-02"), f)
}

// Build renders observations into an artifact named after the project.
func Build(projectName string, f Format, observations []observation.Observation, now time.Time) (*Artifact, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f, observations); err != nil {
		return nil, err
	}
	return &Artifact{
		FileName:    FileName(projectName, f, now),
		ContentType: f.ContentType(),
		Format:      f,
		Count:       len(observations),
		Data:        buf.Bytes(),
	}, nil
}

// Write renders observations to w in the given format.
func Write(w io.Writer, f Format, observations []observation.Observation) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, observations)
	case FormatJSON:
		return writeJSON(w, observations)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

func writeJSON(w io.Writer, observations []observation.Observation) error {
	if observations == nil {
		observations = []observation.Observation{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(observations)
}

func writeCSV(w io.Writer, observations []observation.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, obs := range observations {
		if err := cw.Write(Row(obs)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row flattens an observation in Columns order.
func Row(obs observation.Observation) []string {
	var lat, lon string
	if obs.Coordinates != nil {
		lat = strconv.FormatFloat(obs.Coordinates.Latitude, 'f', -1, 64)
		lon = strconv.FormatFloat(obs.Coordinates.Longitude, 'f', -1, 64)
	}
	var date string
	if !obs.Date.IsZero() {
		date = obs.Date.Format(time.RFC3339)
	}
	return []string{
		obs.ID,
		date,
		obs.Species,
		obs.Location,
		lat,
		lon,
		obs.Habitat,
		obs.Weather,
		obs.Notes,
		strings.Join(obs.Tags, ", "),
	}
}
