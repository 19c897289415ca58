package drama

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Roster is the YAML document listing the companions of a drama.
type Roster struct {
	DefaultSituation string            `yaml:"default_situation,omitempty"`
	Companions       []CompanionConfig `yaml:"companions"`
}

// LoadRoster decodes and validates a roster. Unknown fields are rejected.
func LoadRoster(r io.Reader) (*Roster, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var roster Roster
	if err := dec.Decode(&roster); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("roster: empty document")
		}
		return nil, fmt.Errorf("roster: %w", err)
	}
	if err := roster.Validate(); err != nil {
		return nil, err
	}
	return &roster, nil
}

// LoadRosterFile reads a roster from path.
func LoadRosterFile(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	defer f.Close()
	return LoadRoster(f)
}

// Validate checks every companion and rejects duplicate ids and actions
// pointing to unknown deputies.
func (r *Roster) Validate() error {
	if len(r.Companions) == 0 {
		return fmt.Errorf("roster: no companions")
	}
	ids := make(map[string]bool, len(r.Companions))
	for _, c := range r.Companions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("roster: %w", err)
		}
		id := ToID(c.Name)
		if ids[id] {
			return fmt.Errorf("roster: %w: %s", ErrDuplicateCompanion, id)
		}
		ids[id] = true
	}
	for _, c := range r.Companions {
		for _, a := range c.Actions {
			if !ids[a.Deputy] {
				return fmt.Errorf("roster: companion %q: action %q: %w: %s", c.Name, a.ID, ErrUnknownCompanion, a.Deputy)
			}
		}
	}
	return nil
}
