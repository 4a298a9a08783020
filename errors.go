package nb2doc

import "errors"

// Sentinel errors for library operations.
var (
	ErrEmptySource   = errors.New("notebook source cannot be empty")
	ErrNotebookParse = errors.New("notebook JSON parsing failed")
	ErrNotebookWrite = errors.New("notebook serialization failed")

	// Configuration errors.
	ErrInvalidConfig  = errors.New("invalid notebook rendering configuration")
	ErrOptionNotFound = errors.New("render option not found")
	ErrConfigOverride = errors.New("failed to apply notebook metadata overrides")

	// Renderer plugin errors.
	ErrUnknownRenderer = errors.New("unknown element renderer")
	ErrRendererExists  = errors.New("element renderer already registered")

	// File persistence errors.
	ErrFileExists = errors.New("output file already exists")
	ErrWriteFile  = errors.New("failed to write output file")

	// Glue errors.
	ErrGlueEncode = errors.New("failed to encode glue data")
)
