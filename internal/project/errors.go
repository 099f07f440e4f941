package project

import "errors"

// Errors returned by the identity loader and discovery walk. Callers branch
// on these with errors.Is, never on message text.
var (
	ErrMissingMarker = errors.New("project: projectid marker missing")
	ErrEmptyMarker   = errors.New("project: projectid marker is empty")
	ErrInvalidFormat = errors.New("project: projectid is not a valid v4 UUID")
	ErrMismatch      = errors.New("project: provided project id does not match marker")
	ErrNested        = errors.New("project: nested project detected")
)

// DuplicateError reports two accepted project roots sharing one project_id.
type DuplicateError struct {
	ID    string
	RootA string
	RootB string
}

func (e *DuplicateError) Error() string {
	return "project: duplicate project_id " + e.ID + " at " + e.RootA + " and " + e.RootB
}
