// Package response shapes search results for the user: a short view for
// quick answers and an expanded view with full hours and service lists,
// then a natural-language summary grounded strictly in those views.
package response

import (
	"fmt"
	"strings"

	"orgfinder/internal/model"
	"orgfinder/internal/spatial"
)

// Number of free services surfaced per organization in the short view.
const shortViewFreeServices = 3

// ShortEntry is the quick-answer projection of one organization.
type ShortEntry struct {
	Name          string   `json:"name"`
	Phone         string   `json:"phone"`
	Address       string   `json:"address"`
	DistanceMiles *float64 `json:"distance_miles,omitempty"`
	FreeServices  []string `json:"free_services,omitempty"`
}

// ExpandedEntry carries the full detail: uncapped service lists split by
// payment type, plus complete hours.
type ExpandedEntry struct {
	Name          string           `json:"name"`
	Phone         string           `json:"phone"`
	Address       string           `json:"address"`
	DistanceMiles *float64         `json:"distance_miles,omitempty"`
	Hours         []model.DayHours `json:"hours,omitempty"`
	FreeServices  []string         `json:"free_services,omitempty"`
	PaidServices  []string         `json:"paid_services,omitempty"`
}

// Tiers is the two-level view handed to the summarizer.
type Tiers struct {
	Short    []ShortEntry    `json:"short"`
	Expanded []ExpandedEntry `json:"expanded"`
}

// BuildTiers projects the organizations into both views. Distances appear
// only when the spatial context was geocoded; they are measured to the
// organization's own coordinates when present, else to its area centroid.
func BuildTiers(orgs []model.Organization, sc *model.SpatialContext, centroids map[string]model.Coordinates) Tiers {
	tiers := Tiers{
		Short:    make([]ShortEntry, 0, len(orgs)),
		Expanded: make([]ExpandedEntry, 0, len(orgs)),
	}
	for _, org := range orgs {
		free, paid := splitServices(org.Services)

		short := ShortEntry{
			Name:    org.Name,
			Phone:   org.Phone,
			Address: formatAddress(org.Locations),
		}
		if d := distanceMiles(org, sc, centroids); d != nil {
			short.DistanceMiles = d
		}
		if len(free) > shortViewFreeServices {
			short.FreeServices = free[:shortViewFreeServices]
		} else {
			short.FreeServices = free
		}

		tiers.Short = append(tiers.Short, short)
		tiers.Expanded = append(tiers.Expanded, ExpandedEntry{
			Name:          short.Name,
			Phone:         short.Phone,
			Address:       short.Address,
			DistanceMiles: short.DistanceMiles,
			Hours:         org.Hours,
			FreeServices:  free,
			PaidServices:  paid,
		})
	}
	return tiers
}

func splitServices(services []model.Service) (free, paid []string) {
	for _, s := range services {
		if strings.EqualFold(s.Type, "Free") {
			free = append(free, s.Name)
		} else {
			paid = append(paid, s.Name)
		}
	}
	return free, paid
}

func formatAddress(locations []model.Location) string {
	if len(locations) == 0 {
		return ""
	}
	l := locations[0]
	parts := make([]string, 0, 4)
	for _, p := range []string{l.StreetAddress, l.City, l.State, l.ZipCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func distanceMiles(org model.Organization, sc *model.SpatialContext, centroids map[string]model.Coordinates) *float64 {
	if sc == nil || sc.Origin == nil || len(org.Locations) == 0 {
		return nil
	}
	l := org.Locations[0]
	point := model.Coordinates{Lat: l.Latitude, Lon: l.Longitude}
	if point == (model.Coordinates{}) {
		centroid, ok := centroids[l.ZipCode]
		if !ok {
			return nil
		}
		point = centroid
	}
	d := spatial.HaversineMiles(*sc.Origin, point)
	// Round to a tenth of a mile; finer precision overstates what centroid
	// distance can support.
	d = float64(int(d*10+0.5)) / 10
	return &d
}

// FallbackListing renders the short view as plain text when summarization
// is unavailable.
func FallbackListing(tiers Tiers) string {
	if len(tiers.Short) == 0 {
		return model.MsgNoMatches
	}
	var sb strings.Builder
	sb.WriteString("Here's what I found:\n")
	for _, entry := range tiers.Short {
		sb.WriteString("- ")
		sb.WriteString(entry.Name)
		if entry.Address != "" {
			sb.WriteString(" (" + entry.Address + ")")
		}
		if entry.DistanceMiles != nil {
			sb.WriteString(fmt.Sprintf(", about %.1f mi away", *entry.DistanceMiles))
		}
		if entry.Phone != "" {
			sb.WriteString(", " + entry.Phone)
		}
		if len(entry.FreeServices) > 0 {
			sb.WriteString("; free: " + strings.Join(entry.FreeServices, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
