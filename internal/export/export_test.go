package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/export"
	"github.com/stretchr/testify/require"
)

func sample() []observation.Observation {
	return []observation.Observation{
		{
			ID:          "o1",
			ProjectID:   "p1",
			Date:        time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
			Species:     "Clownfish",
			Location:    "Reef, \"North\"",
			Coordinates: &observation.Coordinates{Latitude: 1.5, Longitude: -2.25},
			Habitat:     "anemone",
			Notes:       "pair\nguarding eggs",
			Tags:        []string{"fish", "pair"},
		},
		{
			ID:          "o2",
			ProjectID:   "p1",
			Species:     "Sea turtle",
			Coordinates: &observation.Coordinates{Latitude: 0, Longitude: 0},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, ok := export.ParseFormat("CSV")
	require.True(t, ok)
	require.Equal(t, export.FormatCSV, f)

	f, ok = export.ParseFormat("tabular")
	require.True(t, ok)
	require.Equal(t, export.FormatCSV, f)

	_, ok = export.ParseFormat("xml")
	require.False(t, ok)
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 5, 2, 23, 0, 0, 0, time.UTC)
	require.Equal(t, "Reef_Survey_2024-05-02.json", export.FileName("Reef  Survey", export.FormatJSON, now))
	require.Equal(t, "Coastal_Birds_2024-05-02.csv", export.FileName(" Coastal\tBirds ", export.FormatCSV, now))

	// 06:30 on the 3rd in Perth is still the 2nd in UTC.
	perth := time.FixedZone("AWST", 8*60*60)
	local := time.Date(2024, 5, 3, 6, 30, 0, 0, perth)
	require.Equal(t, "Reef_Survey_2024-05-02.json", export.FileName("Reef Survey", export.FormatJSON, local))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.FormatCSV, sample()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, export.Columns, rows[0])
	require.Equal(t, []string{
		"o1", "2024-05-02T09:30:00Z", "Clownfish", "Reef, \"North\"", "1.5", "-2.25",
		"anemone", "", "pair\nguarding eggs", "fish, pair",
	}, rows[1])
	require.Equal(t, "", rows[2][1])
	require.Equal(t, "0", rows[2][4])
}

func TestBuildJSON(t *testing.T) {
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	artifact, err := export.Build("Reef Survey", export.FormatJSON, sample(), now)
	require.NoError(t, err)
	require.Equal(t, "Reef_Survey_2024-05-02.json", artifact.FileName)
	require.Equal(t, 2, artifact.Count)
	require.Contains(t, string(artifact.Data), "\n  {\n    \"id\": \"o1\"")

	var decoded []observation.Observation
	require.NoError(t, json.Unmarshal(artifact.Data, &decoded))
	require.Equal(t, sample(), decoded)
}
