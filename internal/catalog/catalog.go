// Package catalog serves the static beach catalog: islands, their beaches in
// catalog order, and the catalog metadata. It is read-only after Load.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
)

//go:embed data/beaches.json
var defaultData []byte

// ErrUnknownIsland is returned when an island id is not in the catalog.
var ErrUnknownIsland = errors.New("island not found")

// ErrInvalidCatalog is returned when catalog data fails to parse or validate.
var ErrInvalidCatalog = errors.New("invalid beach catalog")

// Metadata is passed through verbatim to API callers.
type Metadata map[string]interface{}

// Island summarises one island for listings.
type Island struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BeachCount int    `json:"beachCount"`
}

// Filter narrows All. Zero fields match everything.
type Filter struct {
	Protection    models.ProtectionLevel
	MeltemiShield models.MeltemiShield
}

// Catalog maps island ids to their beaches.
type Catalog struct {
	metadata Metadata
	islands  map[string][]models.Beach
	ids      []string // sorted
}

type fileFormat struct {
	Metadata Metadata                  `json:"metadata"`
	Beaches  map[string][]models.Beach `json:"beaches"`
}

// Default loads the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return Load(defaultData)
}

// Load parses and validates catalog JSON. Island ids are lower-cased and each
// beach's Island field is set from its parent key.
func Load(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidCatalog, err)
	}
	if len(f.Beaches) == 0 {
		return nil, fmt.Errorf("%w: no islands", ErrInvalidCatalog)
	}

	c := &Catalog{
		metadata: f.Metadata,
		islands:  make(map[string][]models.Beach, len(f.Beaches)),
	}
	for rawID, beaches := range f.Beaches {
		id := strings.ToLower(strings.TrimSpace(rawID))
		if id == "" {
			return nil, fmt.Errorf("%w: empty island id", ErrInvalidCatalog)
		}
		if _, dup := c.islands[id]; dup {
			return nil, fmt.Errorf("%w: duplicate island %q", ErrInvalidCatalog, id)
		}
		out := make([]models.Beach, 0, len(beaches))
		for i, b := range beaches {
			b.Island = id
			if err := validateBeach(b); err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidCatalog, id, i, err)
			}
			out = append(out, b)
		}
		c.islands[id] = out
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c, nil
}

func validateBeach(b models.Beach) error {
	if strings.TrimSpace(b.Name) == "" {
		return errors.New("name is required")
	}
	if b.Lat < -90 || b.Lat > 90 || b.Lon < -180 || b.Lon > 180 {
		return fmt.Errorf("%s: coordinates out of range", b.Name)
	}
	if !b.Protection.Valid() {
		return fmt.Errorf("%s: unknown protection %q", b.Name, b.Protection)
	}
	if !b.MeltemiShield.Valid() {
		return fmt.Errorf("%s: unknown meltemiShield %q", b.Name, b.MeltemiShield)
	}
	return nil
}

// Beaches returns the island's beaches in catalog order. The id is matched
// case-insensitively. The returned slice is a copy.
func (c *Catalog) Beaches(island string) ([]models.Beach, error) {
	id := strings.ToLower(strings.TrimSpace(island))
	beaches, ok := c.islands[id]
	if !ok {
		return nil, fmt.Errorf("%w: no beach data available for %q", ErrUnknownIsland, island)
	}
	return append([]models.Beach(nil), beaches...), nil
}

// Islands lists every island sorted by id.
func (c *Catalog) Islands() []Island {
	out := make([]Island, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, Island{
			ID:         id,
			Name:       displayName(id),
			BeachCount: len(c.islands[id]),
		})
	}
	return out
}

// All returns every beach matching f, islands in id order.
func (c *Catalog) All(f Filter) []models.Beach {
	var out []models.Beach
	for _, id := range c.ids {
		for _, b := range c.islands[id] {
			if f.Protection != "" && b.Protection != f.Protection {
				continue
			}
			if f.MeltemiShield != "" && b.MeltemiShield != f.MeltemiShield {
				continue
			}
			out = append(out, b)
		}
	}
	return out
}

// Search matches query case-insensitively against beach names, descriptions
// and island ids.
func (c *Catalog) Search(query string) []models.Beach {
	term := strings.ToLower(strings.TrimSpace(query))
	var out []models.Beach
	if term == "" {
		return out
	}
	for _, id := range c.ids {
		for _, b := range c.islands[id] {
			if strings.Contains(strings.ToLower(b.Name), term) ||
				strings.Contains(strings.ToLower(b.Description), term) ||
				strings.Contains(id, term) {
				out = append(out, b)
			}
		}
	}
	return out
}

// Metadata returns the catalog metadata block.
func (c *Catalog) Metadata() Metadata {
	return c.metadata
}

// TotalBeaches counts beaches across all islands.
func (c *Catalog) TotalBeaches() int {
	n := 0
	for _, beaches := range c.islands {
		n += len(beaches)
	}
	return n
}

func displayName(id string) string {
	if id == "" {
		return id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}
