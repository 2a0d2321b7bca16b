package core

import (
	"path/filepath"
	"strings"
)

// ArtifactExt is the extension the compiler gives its output.
const ArtifactExt = ".js"

// DefaultHeaderLines is the number of prologue lines tsc emits for a
// CommonJS module: `"use strict";` and `exports.__esModule = true;`.
const DefaultHeaderLines = 2

// Target represents one compile → relocate → trim unit.
//
// Paths are either absolute or relative to the Runner's WorkingDir.
type Target struct {
	// Name is the logical identifier used in logs, traces and summaries.
	Name string `json:"name" yaml:"name"`

	// Source is the TypeScript file handed to the compiler. Never mutated.
	Source string `json:"source" yaml:"source"`

	// Relocate moves the compiled artifact to Destination before trimming.
	Relocate bool `json:"relocate,omitempty" yaml:"relocate,omitempty"`

	// Destination is the artifact's final path. Required when Relocate is set.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// ArtifactPath derives the path the compiler writes for source: same
// directory and base name, ArtifactExt extension.
func ArtifactPath(source string) string {
	ext := filepath.Ext(source)
	return strings.TrimSuffix(source, ext) + ArtifactExt
}

// FinalPath returns where the artifact lives once the pipeline finishes.
func (t Target) FinalPath() string {
	if t.Relocate {
		return t.Destination
	}
	return ArtifactPath(t.Source)
}

// DisplayName returns Name, falling back to the source path.
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Source
}
