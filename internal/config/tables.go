package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"orgfinder/internal/model"
)

// Tables holds the curated lookup data: the landmark table, the service
// synonym table, the zip adjacency rings and centroids, and the proximity
// vocabulary. Loaded once at process start and shared read-only across
// sessions; nothing mutates it afterwards, so no locking is needed.
type Tables struct {
	// Landmarks maps a lower-cased place name to its home area identifier.
	Landmarks map[string]string `yaml:"landmarks"`

	// Synonyms maps a known variant spelling to its canonical token.
	Synonyms map[string]string `yaml:"synonyms"`

	// ZipAdjacency lists the immediate neighbor ring of each area
	// identifier, ordered nearest first.
	ZipAdjacency map[string][]string `yaml:"zip_adjacency"`

	// ZipCentroids gives each area identifier a representative point for
	// proximity ordering on the geocoding path.
	ZipCentroids map[string]model.Coordinates `yaml:"zip_centroids"`

	// ProximityMiles maps distance vocabulary ("walking distance") to a
	// mile threshold for the geocoding path.
	ProximityMiles map[string]float64 `yaml:"proximity_miles"`

	// DefaultRadiusMiles bounds the geocoding path when no distance
	// vocabulary appears in the phrase.
	DefaultRadiusMiles float64 `yaml:"default_radius_miles"`

	// ExpandedRadiusMiles is the geocoding-path threshold after the single
	// allowed radius expansion; further levels scale by the same ratio.
	ExpandedRadiusMiles float64 `yaml:"expanded_radius_miles"`
}

// LoadTables reads and validates the lookup tables from a YAML file.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tables file: %w", err)
	}

	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("error parsing tables YAML: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) validate() error {
	if len(t.Landmarks) == 0 {
		return fmt.Errorf("tables: landmark table is empty")
	}
	if len(t.ZipAdjacency) == 0 {
		return fmt.Errorf("tables: zip adjacency table is empty")
	}
	for name, zip := range t.Landmarks {
		if strings.TrimSpace(zip) == "" {
			return fmt.Errorf("tables: landmark %q has no home area", name)
		}
	}
	if t.DefaultRadiusMiles <= 0 {
		t.DefaultRadiusMiles = 0.8
	}
	if t.ExpandedRadiusMiles <= t.DefaultRadiusMiles {
		t.ExpandedRadiusMiles = 1.25
	}
	return nil
}
