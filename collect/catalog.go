// Package collect implements the catch-them-all chat game: chatters
// spend pokeballs to catch random pokemon from a catalog, building a
// personal pokedex that persists across restarts.
package collect

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// Species is one catchable entry in the catalog.
type Species struct {
	ID         int
	Name       string
	Generation int
}

// Catalog is the full set of catchable species, indexed by id and by
// generation.
type Catalog struct {
	species []Species
	byID    map[int]Species
	byGen   map[int][]int
}

// LoadCatalog reads the species catalog from a CSV file with columns
// id, identifier, and generation_id.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("catalog %s has no entries", path)
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[name] = i
	}
	for _, want := range []string{"id", "identifier", "generation_id"} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("catalog %s missing column %q", path, want)
		}
	}

	c := &Catalog{
		byID:  make(map[int]Species),
		byGen: make(map[int][]int),
	}
	for _, row := range rows[1:] {
		id, err := strconv.Atoi(row[cols["id"]])
		if err != nil {
			return nil, fmt.Errorf("catalog %s: bad id %q: %w", path, row[cols["id"]], err)
		}
		gen, err := strconv.Atoi(row[cols["generation_id"]])
		if err != nil {
			return nil, fmt.Errorf("catalog %s: bad generation_id %q: %w", path, row[cols["generation_id"]], err)
		}
		sp := Species{ID: id, Name: row[cols["identifier"]], Generation: gen}
		c.species = append(c.species, sp)
		c.byID[sp.ID] = sp
		c.byGen[gen] = append(c.byGen[gen], sp.ID)
	}
	return c, nil
}

// Len is the number of species in the catalog.
func (c *Catalog) Len() int { return len(c.species) }

// ByID looks up a species by its catalog id.
func (c *Catalog) ByID(id int) (Species, bool) {
	sp, ok := c.byID[id]
	return sp, ok
}

// At returns the species at the given catalog position. Used with a
// random index to draw a catch.
func (c *Catalog) At(i int) Species { return c.species[i] }
