// Package spatial resolves free-text location phrases into ordered sets of
// candidate area identifiers. Resolution tries, in order: temporal
// suppression, an explicit zip code, the curated landmark table, and
// finally geocoding against area centroids. A resolved context can be
// expanded exactly one level on zero search results.
package spatial

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"orgfinder/internal/config"
	"orgfinder/internal/keyword"
	"orgfinder/internal/model"
)

var zipRe = regexp.MustCompile(`\b(\d{5})\b`)

// Geocoder turns a place phrase into a point, or nil when the phrase is not
// a findable place.
type Geocoder interface {
	Geocode(ctx context.Context, phrase string) (*model.Coordinates, error)
}

// Resolver maps location phrases to candidate areas using the lookup tables
// and an optional geocoder.
type Resolver struct {
	tables   *config.Tables
	geocoder Geocoder
	log      zerolog.Logger

	// landmarkNames is the landmark table's keys, longest first, so that
	// "university of pennsylvania" wins over any shorter contained name.
	landmarkNames []string
}

// NewResolver builds a resolver. The geocoder may be nil; resolution then
// stops after the landmark table.
func NewResolver(tables *config.Tables, geocoder Geocoder, log zerolog.Logger) *Resolver {
	r := &Resolver{tables: tables, geocoder: geocoder, log: log}
	for name := range tables.Landmarks {
		r.landmarkNames = append(r.landmarkNames, name)
	}
	sort.Slice(r.landmarkNames, func(i, j int) bool {
		if len(r.landmarkNames[i]) != len(r.landmarkNames[j]) {
			return len(r.landmarkNames[i]) > len(r.landmarkNames[j])
		}
		return r.landmarkNames[i] < r.landmarkNames[j]
	})
	return r
}

// Resolve derives the spatial context for a location phrase. Temporal
// vocabulary is stripped before any table lookup, so "around 8pm" can never
// match a landmark or zip while "City Hall around 8pm" still resolves the
// landmark. A phrase with nothing but time words is unresolvable. An empty
// phrase resolves to nil with no error; an unrecognizable one returns
// ErrLocationUnresolved.
func (r *Resolver) Resolve(ctx context.Context, phrase string) (*model.SpatialContext, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, nil
	}

	lowered, substantive := keyword.StripTemporalVocabulary(phrase)
	if !substantive {
		r.log.Debug().Str("phrase", phrase).Msg("location phrase suppressed as temporal")
		return nil, model.ErrLocationUnresolved
	}

	if m := zipRe.FindString(lowered); m != "" {
		if _, known := r.tables.ZipAdjacency[m]; known || r.tables.ZipCentroids[m] != (model.Coordinates{}) {
			return &model.SpatialContext{
				LocationPhrase: phrase,
				CandidateAreas: r.ring(m),
			}, nil
		}
	}

	for _, name := range r.landmarkNames {
		if strings.Contains(lowered, name) {
			home := r.tables.Landmarks[name]
			r.log.Debug().Str("landmark", name).Str("home_area", home).Msg("landmark matched")
			return &model.SpatialContext{
				LocationPhrase: phrase,
				CandidateAreas: r.ring(home),
			}, nil
		}
	}

	if r.geocoder != nil {
		origin, err := r.geocoder.Geocode(ctx, lowered)
		if err != nil {
			r.log.Warn().Err(err).Str("phrase", phrase).Msg("geocoding failed")
		} else if origin != nil {
			areas := r.areasWithin(*origin, r.radiusMiles(lowered, 0))
			if len(areas) > 0 {
				return &model.SpatialContext{
					LocationPhrase: phrase,
					CandidateAreas: areas,
					Origin:         origin,
				}, nil
			}
		}
	}

	return nil, model.ErrLocationUnresolved
}

// Expand widens a resolved context by one level and returns the widened
// copy. The result is always a strict superset ordering-wise: every prior
// candidate keeps its position and new areas append after it.
func (r *Resolver) Expand(prev *model.SpatialContext) *model.SpatialContext {
	if !prev.Resolved() {
		return prev
	}
	next := &model.SpatialContext{
		LocationPhrase: prev.LocationPhrase,
		CandidateAreas: append([]string(nil), prev.CandidateAreas...),
		RadiusLevel:    prev.RadiusLevel + 1,
		Origin:         prev.Origin,
	}

	if prev.Origin != nil {
		widened := r.areasWithin(*prev.Origin, r.radiusMiles(strings.ToLower(prev.LocationPhrase), next.RadiusLevel))
		next.CandidateAreas = unionOrdered(next.CandidateAreas, widened)
		return next
	}

	// Zip-ring path: union in the neighbor ring of every current member.
	for _, area := range prev.CandidateAreas {
		next.CandidateAreas = unionOrdered(next.CandidateAreas, r.tables.ZipAdjacency[area])
	}
	return next
}

// ring returns the area itself followed by its immediate neighbors.
func (r *Resolver) ring(area string) []string {
	return unionOrdered([]string{area}, r.tables.ZipAdjacency[area])
}

// radiusMiles picks the proximity threshold for the geocoding path: the
// phrase's distance vocabulary if present, otherwise the default, scaled by
// the configured expansion ratio per level.
func (r *Resolver) radiusMiles(lowered string, level int) float64 {
	base := r.tables.DefaultRadiusMiles
	for vocab, miles := range r.tables.ProximityMiles {
		if strings.Contains(lowered, vocab) && miles > base {
			base = miles
		}
	}
	ratio := r.tables.ExpandedRadiusMiles / r.tables.DefaultRadiusMiles
	return base * math.Pow(ratio, float64(level))
}

// areasWithin lists the areas whose centroid lies within the threshold,
// nearest first.
func (r *Resolver) areasWithin(origin model.Coordinates, miles float64) []string {
	type candidate struct {
		area string
		dist float64
	}
	var within []candidate
	for area, centroid := range r.tables.ZipCentroids {
		if d := HaversineMiles(origin, centroid); d <= miles {
			within = append(within, candidate{area, d})
		}
	}
	sort.Slice(within, func(i, j int) bool {
		if within[i].dist != within[j].dist {
			return within[i].dist < within[j].dist
		}
		return within[i].area < within[j].area
	})
	areas := make([]string, len(within))
	for i, c := range within {
		areas[i] = c.area
	}
	return areas
}

// unionOrdered appends the members of add that base does not already hold.
func unionOrdered(base, add []string) []string {
	seen := make(map[string]bool, len(base))
	for _, a := range base {
		seen[a] = true
	}
	for _, a := range add {
		if !seen[a] {
			seen[a] = true
			base = append(base, a)
		}
	}
	return base
}

const earthRadiusMiles = 3958.8

// HaversineMiles is the great-circle distance between two points.
func HaversineMiles(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}
