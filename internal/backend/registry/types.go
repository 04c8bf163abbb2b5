package registry

import (
	"errors"
	"io"
)

// CategoryAll is the reserved pseudo-category meaning "every image in this
// workspace". Exactly one category with this id exists per workspace; it is
// synthesized on demand and protected from deletion.
const CategoryAll = "all"

var (
	ErrNoWorkspace   = errors.New("no current workspace")
	ErrDuplicateName = errors.New("duplicate name")
	ErrNotFound      = errors.New("not found")
	ErrLastWorkspace = errors.New("cannot delete the last workspace")
	ErrInvalidName   = errors.New("invalid name")
)

// ImageRecord is the in-memory image representation. Payload is the durable
// byte content; DisplayHandle is derived per process and never persisted.
type ImageRecord struct {
	ID            string `json:"id"`
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	Payload       []byte `json:"-"`
	DisplayHandle string `json:"displayHandle"`
	CategoryID    string `json:"categoryId"`
	WorkspaceID   string `json:"workspaceId"`
	IsFavorite    bool   `json:"isFavorite"`
	CreatedAt     int64  `json:"createdAt"`
}

// ImageCandidate is an ingestion request: a transient readable source plus
// the metadata the UI layer knows about it.
type ImageCandidate struct {
	FileName   string
	MimeType   string // optional, sniffed from content when empty
	CategoryID string // empty means CategoryAll
	Source     io.Reader
}

// AddResult reports how an AddImages batch was partitioned.
type AddResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

type CategoryRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	WorkspaceID string `json:"workspaceId"`
}

type WorkspaceRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}
