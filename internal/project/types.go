// Package project implements the identity marker loader and project
// discovery rules: locating projectid files within a watched root,
// resolving the owning project of a given file, and enforcing the
// no-nesting and no-duplicate-id invariants.
package project

// Identity is the parsed content of a projectid marker file.
type Identity struct {
	ID          string
	Description string
}

// Project is a discovered project root paired with its identity.
type Project struct {
	ID          string
	RootPath    string
	Description string
}
