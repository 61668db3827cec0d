package ingest

import "errors"

// Ingest errors.
var (
	// ErrMissingColumn indicates the CSV header lacks a required column.
	ErrMissingColumn = errors.New("missing required column")

	// ErrNoFiles indicates the tournament directory holds no JSON files.
	ErrNoFiles = errors.New("no tournament files found")
)
