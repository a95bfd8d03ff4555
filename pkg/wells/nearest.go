package wells

// Nearest returns the record closest to (lat, lon) by squared Euclidean
// distance on raw degrees. Records without parseable coordinates are skipped.
// On a tie the earliest record wins. ok is false when no record qualifies.
func Nearest(records []Record, lat, lon float64) (rec Record, ok bool) {
	best := -1.0
	for _, r := range records {
		rlat, rlon, has := r.Coordinates()
		if !has {
			continue
		}
		d := (rlat-lat)*(rlat-lat) + (rlon-lon)*(rlon-lon)
		if !ok || d < best {
			rec, best, ok = r, d, true
		}
	}
	return rec, ok
}
