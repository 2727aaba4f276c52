package location

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locations.yml
var defaultGraphFile []byte

// Seed is a known place with coordinates, used for reverse geocoding and the
// distance-threshold fallback.
type Seed struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type graphFile struct {
	Neighbors map[string][]string `yaml:"neighbors"`
	Aliases   map[string]string   `yaml:"aliases"`
	Seeds     []Seed              `yaml:"seeds"`
}

// Graph maps canonical place names to their ordered neighbors. It is built
// once at startup and never modified afterwards.
type Graph struct {
	neighbors map[string][]string // normalized key -> neighbors
	canonical map[string]string   // normalized key or alias -> canonical name
	seeds     []Seed
}

// LoadGraph reads a graph from path, or the embedded default when path is empty.
func LoadGraph(path string) (*Graph, error) {
	data := defaultGraphFile
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read location graph %s: %w", path, err)
		}
		data = b
	}
	return ParseGraph(data)
}

// ParseGraph builds a Graph from YAML.
func ParseGraph(data []byte) (*Graph, error) {
	var f graphFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse location graph: %w", err)
	}

	g := &Graph{
		neighbors: make(map[string][]string, len(f.Neighbors)),
		canonical: make(map[string]string, len(f.Neighbors)+len(f.Aliases)+len(f.Seeds)),
		seeds:     append([]Seed(nil), f.Seeds...),
	}
	for place, near := range f.Neighbors {
		key := normalize(place)
		g.canonical[key] = place
		g.neighbors[key] = dedupe(near, place)
	}
	for _, s := range f.Seeds {
		if _, ok := g.canonical[normalize(s.Name)]; !ok {
			g.canonical[normalize(s.Name)] = s.Name
		}
	}
	for alias, target := range f.Aliases {
		canon, ok := g.canonical[normalize(target)]
		if !ok {
			return nil, fmt.Errorf("alias %q points to unknown place %q", alias, target)
		}
		g.canonical[normalize(alias)] = canon
	}
	return g, nil
}

// Canonical resolves a free-form place name (case, spacing and aliases
// ignored) to its canonical spelling.
func (g *Graph) Canonical(place string) (string, bool) {
	name, ok := g.canonical[normalize(place)]
	return name, ok
}

// Neighbors returns a copy of the static neighbors for place.
func (g *Graph) Neighbors(place string) ([]string, bool) {
	canon, ok := g.Canonical(place)
	if !ok {
		return nil, false
	}
	near, ok := g.neighbors[normalize(canon)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), near...), true
}

// Seed returns the seed coordinates of a place, if known.
func (g *Graph) Seed(place string) (Seed, bool) {
	canon, ok := g.Canonical(place)
	if !ok {
		return Seed{}, false
	}
	for _, s := range g.seeds {
		if s.Name == canon {
			return s, true
		}
	}
	return Seed{}, false
}

func (g *Graph) Seeds() []Seed {
	return append([]Seed(nil), g.seeds...)
}

// Size is the number of places with a static neighbor list.
func (g *Graph) Size() int {
	return len(g.neighbors)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func dedupe(names []string, self string) []string {
	seen := map[string]struct{}{normalize(self): {}}
	out := make([]string, 0, len(names))
	for _, n := range names {
		k := normalize(n)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(n))
	}
	return out
}
