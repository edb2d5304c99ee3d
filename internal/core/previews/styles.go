package previews

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v2"
)

// PassthroughStyleID is the style that shows the cropped source unmodified.
const PassthroughStyleID = "original"

// Style is an entry of the style catalog.
type Style struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version" json:"version"`
	Passthrough bool   `yaml:"passthrough,omitempty" json:"passthrough"`
}

type catalogFile struct {
	Styles []Style `yaml:"styles"`
}

// Catalog is an immutable set of styles keyed by id.
type Catalog struct {
	styles map[string]Style
	order  []string
}

// NewCatalog validates the styles and canonicalises their versions.
// The pass-through style is added when missing.
func NewCatalog(styles []Style) (*Catalog, error) {
	c := &Catalog{styles: make(map[string]Style, len(styles)+1)}

	for _, s := range styles {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" {
			return nil, fmt.Errorf("%w: style without id", ErrConfiguration)
		}
		if _, dup := c.styles[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate style %q", ErrConfiguration, s.ID)
		}

		if s.ID == PassthroughStyleID {
			s.Passthrough = true
		}
		if s.Version == "" {
			s.Version = "1.0.0"
		}
		v, err := semver.NewVersion(s.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: style %q has invalid version %q: %v", ErrConfiguration, s.ID, s.Version, err)
		}
		s.Version = v.String()
		if s.Name == "" {
			s.Name = s.ID
		}

		c.styles[s.ID] = s
		c.order = append(c.order, s.ID)
	}

	if _, ok := c.styles[PassthroughStyleID]; !ok {
		c.styles[PassthroughStyleID] = Style{
			ID:          PassthroughStyleID,
			Name:        "Original",
			Description: "Your photo, cropped to the canvas",
			Version:     "1.0.0",
			Passthrough: true,
		}
		c.order = append([]string{PassthroughStyleID}, c.order...)
	}

	return c, nil
}

// LoadCatalog reads a YAML catalog file of the form:
//
//	styles:
//	  - id: watercolor
//	    name: Watercolor
//	    version: 1.2
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read style catalog: %v", ErrConfiguration, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse style catalog: %v", ErrConfiguration, err)
	}
	if len(file.Styles) == 0 {
		return nil, fmt.Errorf("%w: style catalog %s is empty", ErrConfiguration, path)
	}
	return NewCatalog(file.Styles)
}

// DefaultCatalog returns the built-in styles.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Style{
		{ID: PassthroughStyleID, Name: "Original", Description: "Your photo, cropped to the canvas", Version: "1.0.0"},
		{ID: "watercolor", Name: "Watercolor", Description: "Soft washes and bleeding edges", Version: "1.3.0"},
		{ID: "oil-painting", Name: "Oil Painting", Description: "Thick impasto brushwork", Version: "2.0.1"},
		{ID: "pop-art", Name: "Pop Art", Description: "Bold halftones and flat color", Version: "1.1.0"},
		{ID: "charcoal", Name: "Charcoal Sketch", Description: "Smudged monochrome drawing", Version: "1.0.0"},
		{ID: "neon-noir", Name: "Neon Noir", Description: "High-contrast night palette", Version: "1.0.2"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the style with the given id.
func (c *Catalog) Get(id string) (Style, error) {
	s, ok := c.styles[id]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q", ErrUnknownStyle, id)
	}
	return s, nil
}

// List returns the styles in catalog order, pass-through first when built in.
func (c *Catalog) List() []Style {
	out := make([]Style, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.styles[id])
	}
	return out
}

// IDs returns the sorted style ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.styles))
	for id := range c.styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
