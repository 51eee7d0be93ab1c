package domain

import (
	"time"

	"github.com/schemati/schemati-backend/internal/diagram"
)

// Project is a named, timestamped diagram snapshot. The JSON shape matches
// the collection blob kept in the persistence store.
type Project struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Data      diagram.Snapshot `json:"data"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Summary is a project without its diagram payload, for listings.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p Project) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

// Export is a downloadable interchange file for one project.
type Export struct {
	ProjectID string
	Filename  string
	Body      []byte
}

// ImportResult is the project minted by an import.
type ImportResult struct {
	ProjectID string           `json:"projectId"`
	Name      string           `json:"name"`
	Data      diagram.Snapshot `json:"projectData"`
}
