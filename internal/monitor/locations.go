package monitor

import (
	"rainbowwatch/internal/types"
)

// Locations is the compiled list of fixed monitoring points. The list is
// immutable at runtime; if operator-configurable points are ever needed,
// move this behind a small read interface instead of editing live state.
var Locations = []types.MonitoringLocation{
	{ID: "daimon", Name: "Daimon Pass", Lat: 36.115, Lng: 137.954},
	{ID: "utsukushigahara", Name: "Utsukushigahara", Lat: 36.227, Lng: 138.113},
	{ID: "takabotchi", Name: "Takabotchi Highlands", Lat: 36.146, Lng: 138.031},
	{ID: "kirigamine", Name: "Kirigamine", Lat: 36.103, Lng: 138.196},
	{ID: "norikura", Name: "Norikura Plateau", Lat: 36.112, Lng: 137.629},
	{ID: "azumino", Name: "Azumino", Lat: 36.304, Lng: 137.905},
	{ID: "suwa", Name: "Lake Suwa", Lat: 36.048, Lng: 138.086},
}

// LocationByID returns the compiled location with the given ID, if any.
func LocationByID(id string) (types.MonitoringLocation, bool) {
	for _, loc := range Locations {
		if loc.ID == id {
			return loc, true
		}
	}
	return types.MonitoringLocation{}, false
}
