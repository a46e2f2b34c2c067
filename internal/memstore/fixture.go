package memstore

import (
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// LoadFixtureFile seeds the store from a YAML file.
func (s *Store) LoadFixtureFile(path string) (*models.Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return s.LoadFixture(f)
}

// LoadFixture seeds the store from YAML.
func (s *Store) LoadFixture(r io.Reader) (*models.Fixture, error) {
	fx, err := models.DecodeFixture(r)
	if err != nil {
		return nil, err
	}
	s.Seed(fx)
	return fx, nil
}

// Seed inserts every record of the fixture.
func (s *Store) Seed(fx *models.Fixture) {
	s.PutWorkspace(fx.Workspace)
	for _, m := range fx.Members {
		s.PutMember(m)
	}
	for _, t := range fx.Tasks {
		s.PutTask(t)
	}
	for _, t := range fx.TimeOff {
		s.PutTimeOff(t)
	}
	for _, p := range fx.Projects {
		s.PutProject(p)
	}
	for _, e := range fx.Epics {
		s.PutEpic(e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range fx.Dependencies {
		if d.ID == "" {
			d.ID = newID()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = s.now()
		}
		s.dependencies[d.ID] = d
	}
}
