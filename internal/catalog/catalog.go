// Package catalog provides the trick list shown on the profile screen.
//
// The default catalog is embedded in the binary. An override file with the
// same layout can be loaded instead.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed tricks.toml
var defaultTOML string

var (
	// ErrInvalidTOML is returned when a catalog file cannot be decoded.
	ErrInvalidTOML = errors.New("invalid catalog toml")

	// ErrInvalidCatalog is returned when a decoded catalog is inconsistent.
	ErrInvalidCatalog = errors.New("invalid catalog")

	// ErrUnknownTrick is returned for trick ids not in the catalog.
	ErrUnknownTrick = errors.New("unknown trick")
)

// Trick is one learnable trick.
type Trick struct {
	ID                 string `toml:"id" json:"id"`
	Name               string `toml:"name" json:"name"`
	Description        string `toml:"description" json:"description"`
	TricksToLearnFirst string `toml:"tricks_to_learn_first" json:"tricks_to_learn_first"`
}

// Prerequisites returns the ids listed in TricksToLearnFirst.
func (t Trick) Prerequisites() []string {
	var ids []string
	for _, id := range strings.Split(t.TricksToLearnFirst, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Section groups tricks by difficulty.
type Section struct {
	ID     string  `toml:"id" json:"id"`
	Name   string  `toml:"name" json:"name"`
	Tricks []Trick `toml:"trick" json:"items"`
}

// Catalog is an immutable, validated trick list.
type Catalog struct {
	sections []Section
	byID     map[string]Trick
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultTOML)
}

// Load reads a catalog file. An empty path or a missing file yields the
// embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default()
		}
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates catalog TOML.
func Parse(data string) (*Catalog, error) {
	var doc struct {
		Section []Section `toml:"section"`
	}
	if _, err := toml.Decode(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTOML, err)
	}

	c := &Catalog{sections: doc.Section, byID: make(map[string]Trick)}
	for _, s := range c.sections {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: section without id", ErrInvalidCatalog)
		}
		for _, t := range s.Tricks {
			if t.ID == "" || t.Name == "" {
				return nil, fmt.Errorf("%w: trick in section %q needs id and name", ErrInvalidCatalog, s.ID)
			}
			if _, dup := c.byID[t.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate trick id %q", ErrInvalidCatalog, t.ID)
			}
			c.byID[t.ID] = t
		}
	}
	for _, t := range c.byID {
		for _, pre := range t.Prerequisites() {
			if _, ok := c.byID[pre]; !ok {
				return nil, fmt.Errorf("%w: trick %q requires unknown trick %q", ErrInvalidCatalog, t.ID, pre)
			}
		}
	}
	return c, nil
}

// Sections returns the sections in file order.
func (c *Catalog) Sections() []Section {
	out := make([]Section, len(c.sections))
	for i, s := range c.sections {
		s.Tricks = append([]Trick(nil), s.Tricks...)
		out[i] = s
	}
	return out
}

// Trick looks up a trick by id.
func (c *Catalog) Trick(id string) (Trick, error) {
	t, ok := c.byID[id]
	if !ok {
		return Trick{}, fmt.Errorf("%w: %q", ErrUnknownTrick, id)
	}
	return t, nil
}

// Len reports the number of tricks.
func (c *Catalog) Len() int { return len(c.byID) }
