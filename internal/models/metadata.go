package models

import "time"

// MetadataVersion is the schema version written to new sanctuary.yaml files
const MetadataVersion = 1

// Sanctuary status values
const (
	StatusActive = "active"
)

// SanctuaryMetadata is the sanctuary.yaml record
type SanctuaryMetadata struct {
	Identity Identity `yaml:"identity"`
	State    State    `yaml:"state"`
}

// Identity is fixed when the sanctuary is created
type Identity struct {
	ProjectName      string    `yaml:"project_name"`
	SanctuaryID      string    `yaml:"sanctuary_id"`
	Version          int       `yaml:"version"`
	CreatedAt        time.Time `yaml:"created_at"`
	BoundProjectPath string    `yaml:"bound_project_path"`
}

// State changes with every mutating operation
type State struct {
	Status        string     `yaml:"status"`
	LastOperation *Operation `yaml:"last_operation,omitempty"`
}

// Operation summarizes the most recent mutating operation
type Operation struct {
	Type        string    `yaml:"type"`
	CompletedAt time.Time `yaml:"completed_at"`
	Success     bool      `yaml:"success"`
	Branch      string    `yaml:"branch,omitempty"`
}
