package diagram

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// FormatVersion is written into the metadata of exported files.
const FormatVersion = "1.0"

// ErrInvalidFormat is returned when an import file lacks nodes or connections.
var ErrInvalidFormat = errors.New("invalid project file format")

// Metadata describes where an exported file came from. ExportedAt is an
// RFC 3339 timestamp kept as text so foreign files still import.
type Metadata struct {
	Version     string `json:"version"`
	ExportedAt  string `json:"exportedAt"`
	ProjectName string `json:"projectName"`
	ProjectID   string `json:"projectId"`
}

// File is the project interchange document.
type File struct {
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections"`
	Borders     json.RawMessage `json:"borders,omitempty"`
	Metadata    *Metadata       `json:"metadata,omitempty"`
}

// NewFile wraps a snapshot with export metadata.
func NewFile(s Snapshot, meta Metadata) File {
	s = s.Normalize()
	if meta.Version == "" {
		meta.Version = FormatVersion
	}
	return File{
		Nodes:       s.Nodes,
		Connections: s.Connections,
		Borders:     s.Borders,
		Metadata:    &meta,
	}
}

// Encode renders the file as indented JSON.
func (f File) Encode() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// ParseFile reads an interchange document. nodes and connections must be
// present as arrays; borders defaults to an empty list.
func ParseFile(r io.Reader) (Snapshot, *Metadata, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Snapshot{}, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if !isArray(f.Nodes) || !isArray(f.Connections) {
		return Snapshot{}, nil, ErrInvalidFormat
	}
	if !isNull(f.Borders) && !isArray(f.Borders) {
		return Snapshot{}, nil, ErrInvalidFormat
	}

	s := Snapshot{Nodes: f.Nodes, Connections: f.Connections, Borders: f.Borders}.Normalize()
	return s, f.Metadata, nil
}

// SanitizeFilename turns a project name into a download file name:
// every non-alphanumeric ASCII character becomes "_" and the result is
// lowercased.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String() + ".json"
}
