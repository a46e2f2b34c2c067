package models

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML seed format for a demo workspace.
type Fixture struct {
	Workspace    Workspace        `yaml:"workspace"`
	Members      []Member         `yaml:"members"`
	Tasks        []Task           `yaml:"tasks"`
	TimeOff      []TimeOff        `yaml:"time_off"`
	Projects     []Project        `yaml:"projects"`
	Epics        []Epic           `yaml:"epics"`
	Dependencies []EpicDependency `yaml:"dependencies"`
}

// DecodeFixture reads a fixture and fills defaults: records without a
// workspace id inherit the fixture workspace and tasks default to backlog.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if fx.Workspace.ID == "" {
		return nil, errors.New("decode fixture: workspace.id is required")
	}

	for i := range fx.Members {
		if fx.Members[i].WorkspaceID == "" {
			fx.Members[i].WorkspaceID = fx.Workspace.ID
		}
	}
	for i := range fx.Tasks {
		if fx.Tasks[i].WorkspaceID == "" {
			fx.Tasks[i].WorkspaceID = fx.Workspace.ID
		}
		if fx.Tasks[i].Status == "" {
			fx.Tasks[i].Status = TaskBacklog
		}
	}
	for i := range fx.Projects {
		if fx.Projects[i].WorkspaceID == "" {
			fx.Projects[i].WorkspaceID = fx.Workspace.ID
		}
	}
	return &fx, nil
}
