package places

import (
	"github.com/refreshbot/extract-refresher/extract"
)

// Normalize flattens the nested per-record structures into one flat row per
// record and returns them as a typed dataset. Fields irrelevant to the result
// schema (photos, types) are dropped, every row is stamped with the original
// query text, and missing values get fixed defaults so the column set stays
// type-stable: the extract engine refuses null-typed columns.
//
// Defaults for absent values: open_now=false, permanently_closed=false,
// price_level=0.0, rating=0.0, user_ratings_total=0.
func Normalize(records []Place, queryText string) *extract.Dataset {
	ds := extract.NewDataset([]extract.Column{
		{Name: "place_id", Type: extract.TypeText},
		{Name: "name", Type: extract.TypeText},
		{Name: "formatted_address", Type: extract.TypeText},
		{Name: "business_status", Type: extract.TypeText},
		{Name: "icon", Type: extract.TypeText},
		{Name: "geometry.location.lat", Type: extract.TypeFloat},
		{Name: "geometry.location.lng", Type: extract.TypeFloat},
		{Name: "rating", Type: extract.TypeFloat},
		{Name: "user_ratings_total", Type: extract.TypeInteger},
		{Name: "price_level", Type: extract.TypeFloat},
		{Name: "opening_hours.open_now", Type: extract.TypeBool},
		{Name: "permanently_closed", Type: extract.TypeBool},
		{Name: "query_text", Type: extract.TypeText},
	})

	for _, rec := range records {
		openNow := false
		if rec.OpeningHours != nil && rec.OpeningHours.OpenNow != nil {
			openNow = *rec.OpeningHours.OpenNow
		}

		// Errors are impossible here: the column layout above matches the
		// appended values exactly.
		_ = ds.AppendRow(
			rec.PlaceID,
			rec.Name,
			rec.FormattedAddress,
			rec.BusinessStatus,
			rec.Icon,
			rec.Geometry.Location.Lat,
			rec.Geometry.Location.Lng,
			floatOrZero(rec.Rating),
			intOrZero(rec.UserRatingsTotal),
			floatOrZero(rec.PriceLevel),
			openNow,
			boolOrFalse(rec.PermanentlyClosed),
			queryText,
		)
	}

	return ds
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0.0
	}
	return *v
}

func intOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func boolOrFalse(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}
