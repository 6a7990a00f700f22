package spatial

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"orgfinder/internal/model"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder resolves place phrases through the public Nominatim
// search endpoint. Results are restricted to the configured city so a bare
// street name does not land in another state.
type NominatimGeocoder struct {
	client   *resty.Client
	citybias string
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// NewNominatimGeocoder builds a geocoder. cityBias is appended to every
// query ("Philadelphia, PA"); pass "" to disable biasing.
func NewNominatimGeocoder(cityBias string) *NominatimGeocoder {
	client := resty.New().
		SetBaseURL(nominatimBaseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		SetHeader("User-Agent", "orgfinder/1.0")
	return &NominatimGeocoder{client: client, citybias: cityBias}
}

// Geocode returns the best-match point for the phrase, or nil when the
// service finds nothing.
func (g *NominatimGeocoder) Geocode(ctx context.Context, phrase string) (*model.Coordinates, error) {
	query := phrase
	if g.citybias != "" {
		query = phrase + ", " + g.citybias
	}

	var results []nominatimResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocode request: status %s", resp.Status())
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode response: bad latitude %q", results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode response: bad longitude %q", results[0].Lon)
	}
	return &model.Coordinates{Lat: lat, Lon: lon}, nil
}
