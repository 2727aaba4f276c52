package location

import (
	"errors"
	"math"
	"sort"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

var ErrNoPlace = errors.New("no known place near coordinates")

// Resolver answers proximity questions over a static Graph. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	graph           *Graph
	proximityKm     float64
	geocodeRadiusKm float64
}

func NewResolver(graph *Graph, proximityKm, geocodeRadiusKm float64) *Resolver {
	if proximityKm <= 0 {
		proximityKm = 15
	}
	if geocodeRadiusKm <= 0 {
		geocodeRadiusKm = 25
	}
	return &Resolver{graph: graph, proximityKm: proximityKm, geocodeRadiusKm: geocodeRadiusKm}
}

func (r *Resolver) Graph() *Graph {
	return r.graph
}

// Nearby returns the places near place. The static table wins; otherwise the
// coordinates (or the seed coordinates of place) drive a distance-threshold
// search over the seed list, closest first.
func (r *Resolver) Nearby(place string, coords *types.Geolocation) []string {
	if near, ok := r.graph.Neighbors(place); ok {
		return near
	}

	origin := coords
	if origin == nil {
		if seed, ok := r.graph.Seed(place); ok {
			origin = &types.Geolocation{Latitude: seed.Lat, Longitude: seed.Lon}
		}
	}
	if origin == nil || !origin.Valid() {
		return nil
	}

	self, _ := r.graph.Canonical(place)
	type hit struct {
		name string
		km   float64
	}
	var hits []hit
	for _, s := range r.graph.seeds {
		if s.Name == self {
			continue
		}
		km := Distance(origin.Latitude, origin.Longitude, s.Lat, s.Lon)
		if km <= r.proximityKm {
			hits = append(hits, hit{name: s.Name, km: km})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].km < hits[j].km })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}

// ReverseGeocode maps coordinates to the closest seed place inside the
// geocode radius.
func (r *Resolver) ReverseGeocode(coords types.Geolocation) (string, error) {
	if !coords.Valid() {
		return "", ErrNoPlace
	}
	best, bestKm := "", math.MaxFloat64
	for _, s := range r.graph.seeds {
		km := Distance(coords.Latitude, coords.Longitude, s.Lat, s.Lon)
		if km < bestKm {
			best, bestKm = s.Name, km
		}
	}
	if best == "" || bestKm > r.geocodeRadiusKm {
		return "", ErrNoPlace
	}
	return best, nil
}

// Distance is the haversine distance between two coordinates in kilometers.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth's radius in kilometers

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
