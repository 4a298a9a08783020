// Package assets ships the static resources embedded in the binary.
package assets

import (
	"embed"
	"fmt"
)

//go:embed static/*
var static embed.FS

// StylesheetName is the file name the default stylesheet is published
// under in a build's _static directory.
const StylesheetName = "nb2doc.css"

// Stylesheet returns the default stylesheet for rendered notebook pages.
func Stylesheet() ([]byte, error) {
	content, err := static.ReadFile("static/" + StylesheetName)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	return content, nil
}
