package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MarkerFileName is the literal name of the identity marker the discovery
// walk looks for at a candidate project root.
const MarkerFileName = "projectid"

type markerJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// LoadIdentity reads and validates the projectid marker at root. It accepts
// either a bare UUID-v4 string or a JSON object carrying at least an "id"
// field. New writers should prefer the JSON form; both are read identically
// here.
func LoadIdentity(root string) (Identity, error) {
	data, err := os.ReadFile(filepath.Join(root, MarkerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("%s: %w", root, ErrMissingMarker)
		}
		return Identity{}, fmt.Errorf("project: read marker at %s: %w", root, err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return Identity{}, fmt.Errorf("%s: %w", root, ErrEmptyMarker)
	}

	var id, description string
	if strings.HasPrefix(trimmed, "{") {
		var m markerJSON
		if err := json.Unmarshal([]byte(trimmed), &m); err != nil || m.ID == "" {
			return Identity{}, fmt.Errorf("%s: %w", root, ErrInvalidFormat)
		}
		id = m.ID
		description = m.Description
	} else {
		id = trimmed
	}

	parsed, err := uuid.Parse(id)
	if err != nil || parsed.Version() != 4 {
		return Identity{}, fmt.Errorf("%s: %w", root, ErrInvalidFormat)
	}

	return Identity{ID: parsed.String(), Description: description}, nil
}

// RequireMatching loads the identity at root and additionally fails with
// ErrMismatch when providedID does not equal the loaded id. Used as a safety
// gate before any mutating operation against a project.
func RequireMatching(root, providedID string) (Identity, error) {
	identity, err := LoadIdentity(root)
	if err != nil {
		return Identity{}, err
	}
	if !strings.EqualFold(identity.ID, providedID) {
		return Identity{}, fmt.Errorf("%s: have %s, want %s: %w", root, identity.ID, providedID, ErrMismatch)
	}
	return identity, nil
}
