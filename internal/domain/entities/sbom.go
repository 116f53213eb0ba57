package entities

import "time"

// SBOM represents a CycloneDX Software Bill of Materials for a package
type SBOM struct {
	BOMFormat   string      `json:"bomFormat"`
	SpecVersion string      `json:"specVersion"`
	Version     int         `json:"version"`
	Metadata    Metadata    `json:"metadata"`
	Components  []Component `json:"components"`
}

// Component represents one file of the package layout
type Component struct {
	Type    string `json:"type"` // "library", "file"
	Name    string `json:"name"`
	Version string `json:"version"`
	Hashes  []Hash `json:"hashes,omitempty"`
}

// Hash represents a cryptographic hash of a component
type Hash struct {
	Algorithm string `json:"alg"`
	Value     string `json:"content"`
}

// Metadata contains SBOM generation metadata
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Tools     []Tool    `json:"tools"`
	Component Component `json:"component"`
}

// Tool represents a tool used to generate the SBOM
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
