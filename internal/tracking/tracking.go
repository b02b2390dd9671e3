// Package tracking holds the set of competitor products a periodic run
// extracts, loaded from a YAML or JSON file.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pricehawk/pricehawk-engine/internal/platform"
)

// Competitor is one tracked product page.
type Competitor struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	URL  string `yaml:"url" json:"url"`
}

type file struct {
	Competitors []Competitor `yaml:"competitors" json:"competitors"`
}

// Directory resolves competitor IDs to URLs. It is read-only after
// construction and safe for concurrent use.
type Directory struct {
	byID  map[string]Competitor
	order []string
}

// LoadFile reads a competitors file. The format follows the extension;
// anything other than .json is parsed as YAML.
func LoadFile(path string, policy platform.URLPolicy) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read competitors file: %w", err)
	}
	var f file
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse competitors file %s: %w", path, err)
	}
	return New(f.Competitors, policy)
}

// New validates the entries: IDs must be unique and non-empty, URLs must
// pass policy.
func New(competitors []Competitor, policy platform.URLPolicy) (*Directory, error) {
	d := &Directory{byID: make(map[string]Competitor, len(competitors))}
	for i, c := range competitors {
		c.ID = strings.TrimSpace(c.ID)
		c.URL = strings.TrimSpace(c.URL)
		if c.ID == "" {
			return nil, fmt.Errorf("competitor #%d: id is required", i+1)
		}
		if _, dup := d.byID[c.ID]; dup {
			return nil, fmt.Errorf("competitor %q: duplicate id", c.ID)
		}
		if _, err := policy.ValidateURL(c.URL); err != nil {
			return nil, fmt.Errorf("competitor %q: %w", c.ID, err)
		}
		d.byID[c.ID] = c
		d.order = append(d.order, c.ID)
	}
	return d, nil
}

// CompetitorURL implements extraction.Resolver. Unknown IDs are a
// validation error.
func (d *Directory) CompetitorURL(_ context.Context, id string) (string, error) {
	c, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return "", &platform.ValidationError{Field: "competitor_id", Message: fmt.Sprintf("unknown competitor %q", id)}
	}
	return c.URL, nil
}

func (d *Directory) Get(id string) (Competitor, bool) {
	c, ok := d.byID[id]
	return c, ok
}

// IDs returns every ID in file order.
func (d *Directory) IDs() []string {
	return append([]string(nil), d.order...)
}

// Sorted returns the competitors ordered by ID.
func (d *Directory) Sorted() []Competitor {
	out := make([]Competitor, 0, len(d.byID))
	for _, c := range d.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Len() int { return len(d.order) }
