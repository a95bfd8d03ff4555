package wells

import (
	"sort"

	"github.com/mmcloughlin/geohash"
)

// HeatPoint is one weighted heatmap sample.
type HeatPoint struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Weight float64 `json:"weight"`
}

// HeatLayer carries the Leaflet.heat options next to the points.
type HeatLayer struct {
	Points   []HeatPoint        `json:"points"`
	Radius   int                `json:"radius"`
	Blur     int                `json:"blur"`
	MaxZoom  int                `json:"maxZoom"`
	Gradient map[string]string  `json:"gradient"`
	Cells    map[string]float64 `json:"cells,omitempty"`
}

// HeatPoints weights every well with parseable coordinates by its measured
// flow. Wells without a numeric Vazão_LH are left out.
func HeatPoints(ds *Dataset) []HeatPoint {
	pts := make([]HeatPoint, 0)
	if !ds.Has(ColVazao) || !ds.Has(ColLatitude) || !ds.Has(ColLongitude) {
		return pts
	}
	for _, r := range ds.Records {
		lat, lon, ok := r.Coordinates()
		if !ok {
			continue
		}
		w, ok := r.Number(ColVazao)
		if !ok {
			continue
		}
		pts = append(pts, HeatPoint{Lat: lat, Lon: lon, Weight: w})
	}
	return pts
}

// HeatCells buckets points into geohash cells of the given precision and
// returns one point per cell at the cell center, weighted by the sum of its
// members. Output is ordered by geohash so responses are stable.
func HeatCells(points []HeatPoint, precision uint) ([]HeatPoint, map[string]float64) {
	if precision == 0 || precision > 12 {
		return points, nil
	}
	sums := make(map[string]float64)
	for _, p := range points {
		sums[geohash.EncodeWithPrecision(p.Lat, p.Lon, precision)] += p.Weight
	}
	hashes := make([]string, 0, len(sums))
	for h := range sums {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	out := make([]HeatPoint, 0, len(hashes))
	for _, h := range hashes {
		lat, lon := geohash.DecodeCenter(h)
		out = append(out, HeatPoint{Lat: lat, Lon: lon, Weight: sums[h]})
	}
	return out, sums
}

// NewHeatLayer wraps points with the rendering options used on the map.
func NewHeatLayer(points []HeatPoint, cells map[string]float64) HeatLayer {
	return HeatLayer{
		Points:   points,
		Radius:   25,
		Blur:     20,
		MaxZoom:  12,
		Gradient: map[string]string{"0.4": "blue", "0.65": "lime", "1": "red"},
		Cells:    cells,
	}
}
