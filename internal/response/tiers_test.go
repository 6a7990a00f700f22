package response

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/model"
)

func sampleOrg() model.Organization {
	return model.Organization{
		Name:   "Free Library of Philadelphia",
		Phone:  "215-686-5322",
		Status: "open",
		Locations: []model.Location{
			{StreetAddress: "1901 Vine St", City: "Philadelphia", State: "PA", ZipCode: "19103"},
		},
		Services: []model.Service{
			{Name: "Wi-Fi", Type: "Free"},
			{Name: "Story Time", Type: "Free"},
			{Name: "Computer Classes", Type: "Free"},
			{Name: "Homework Help", Type: "Free"},
			{Name: "Event Room Rental", Type: "Paid"},
		},
		Hours: []model.DayHours{
			{Day: "Sunday", Hours: "Closed"},
			{Day: "Monday", Hours: "9:00 AM - 8:00 PM"},
		},
	}
}

func TestBuildTiersShortViewCapsFreeServices(t *testing.T) {
	tiers := BuildTiers([]model.Organization{sampleOrg()}, nil, nil)

	require.Len(t, tiers.Short, 1)
	short := tiers.Short[0]
	assert.Equal(t, "Free Library of Philadelphia", short.Name)
	assert.Equal(t, "215-686-5322", short.Phone)
	assert.Equal(t, "1901 Vine St, Philadelphia, PA, 19103", short.Address)
	assert.Len(t, short.FreeServices, 3)
	assert.Nil(t, short.DistanceMiles)
}

func TestBuildTiersExpandedViewCarriesEverything(t *testing.T) {
	tiers := BuildTiers([]model.Organization{sampleOrg()}, nil, nil)

	require.Len(t, tiers.Expanded, 1)
	expanded := tiers.Expanded[0]
	assert.Len(t, expanded.FreeServices, 4)
	assert.Equal(t, []string{"Event Room Rental"}, expanded.PaidServices)
	assert.Len(t, expanded.Hours, 2)
}

func TestExpandedEntryEncodesFullFreeList(t *testing.T) {
	tiers := BuildTiers([]model.Organization{sampleOrg()}, nil, nil)

	data, err := sonic.Marshal(tiers.Expanded[0])
	require.NoError(t, err)
	// The fourth free service is cut from the short view but must survive
	// in the expanded encoding.
	assert.Contains(t, string(data), "Homework Help")
	assert.Contains(t, string(data), "Event Room Rental")
}

func TestBuildTiersDistanceOnlyWithOrigin(t *testing.T) {
	centroids := map[string]model.Coordinates{"19103": {Lat: 39.9523, Lon: -75.1740}}
	sc := &model.SpatialContext{
		CandidateAreas: []string{"19103"},
		Origin:         &model.Coordinates{Lat: 39.9680, Lon: -75.1740},
	}

	tiers := BuildTiers([]model.Organization{sampleOrg()}, sc, centroids)
	require.NotNil(t, tiers.Short[0].DistanceMiles)
	assert.InDelta(t, 1.1, *tiers.Short[0].DistanceMiles, 0.1)

	noOrigin := &model.SpatialContext{CandidateAreas: []string{"19103"}}
	tiers = BuildTiers([]model.Organization{sampleOrg()}, noOrigin, centroids)
	assert.Nil(t, tiers.Short[0].DistanceMiles)
}

func TestBuildTiersEmptyInput(t *testing.T) {
	tiers := BuildTiers(nil, nil, nil)
	assert.Empty(t, tiers.Short)
	assert.Empty(t, tiers.Expanded)
}

func TestFallbackListing(t *testing.T) {
	tiers := BuildTiers([]model.Organization{sampleOrg()}, nil, nil)

	listing := FallbackListing(tiers)
	assert.True(t, strings.HasPrefix(listing, "Here's what I found:"))
	assert.Contains(t, listing, "Free Library of Philadelphia")
	assert.Contains(t, listing, "215-686-5322")
	assert.Contains(t, listing, "Wi-Fi")
}

func TestFallbackListingEmpty(t *testing.T) {
	assert.Equal(t, model.MsgNoMatches, FallbackListing(Tiers{}))
}
