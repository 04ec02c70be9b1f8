package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `biodata keeps biodiversity field observations grouped into projects, stored locally.

Core concepts:
- Project: a named survey (name at least 3 characters). Creating a project makes it the current project.
- Observation: one sighting with species (at least 2 characters), coordinates (required), location text, photos, habitat, weather, notes and tags.
- Current project: new observations join it unless project_id is given. Exports always cover the current project.

Rules:
1) Orient with list_projects; use set_current_project to switch surveys.
2) add_observation needs latitude and longitude. Leave location empty to have it resolved from the coordinates.
3) update_observation only changes the fields you pass.
4) delete_project fails while the project still has observations.
5) export_observations returns the file content as text (json or csv).
6) location_name previews the place name add_observation would record.

Docs:
- biodata://docs/guide
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "biodata://docs/guide",
		Name:        "docs_guide",
		Title:       "biodata field guide",
		Description: "Data model, integrity rules and export formats.",
		Content: `# biodata

## Data model

- Projects are listed newest first. Each has an id, name, optional description, start date and creation time.
- Observations are listed newest first and reference exactly one project through ` + "`projectId`" + `.
- Timestamps ` + "`createdAt`" + ` and ` + "`updatedAt`" + ` are milliseconds since the epoch. ` + "`updatedAt`" + ` is absent until the first edit.

## Integrity rules

- An observation can only be created for an existing project, and only with coordinates.
- A project can only be deleted when no observation references it.
- Deleting the current project clears the current project.

## Export formats

- json: the current project's observations as a pretty-printed array.
- csv: one row per observation with columns ID, Date, Species, Location, Latitude, Longitude, Habitat, Weather, Notes, Tags.
- File names are ` + "`{project_name}_{YYYY-MM-DD}.{ext}`" + ` with whitespace replaced by underscores.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
