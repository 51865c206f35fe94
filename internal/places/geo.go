package places

import (
	"fmt"
	"math"
	"strings"
)

const (
	metersPerMile          = 1609.34
	clusterThresholdMiles  = 2.0
	earthRadiusMiles       = 3959.0
	clusterNamePreviewSize = 3
)

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Stop is a transit stop on a route between two locations.
type Stop struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Type     string  `json:"type"`
	LineName string  `json:"line_name"`
}

// SearchPoint is a coordinate that nearby searches are centered on.
type SearchPoint struct {
	Name          string   `json:"name"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	Type          string   `json:"type"` // origin, midpoint, clustered_stops, mock, or a vehicle type
	StopCount     int      `json:"stop_count,omitempty"`
	OriginalStops []string `json:"original_stops,omitempty"`
}

// PointSummary is the part of a SearchPoint reported back to callers.
type PointSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (p SearchPoint) Summary() PointSummary {
	return PointSummary{Name: p.Name, Type: p.Type}
}

// Haversine returns the great-circle distance between two points in miles.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Pow(math.Sin(dLng/2), 2)
	return earthRadiusMiles * 2 * math.Asin(math.Sqrt(a))
}

// Midpoint averages two coordinates. Good enough at city scale.
func Midpoint(a, b LatLng) LatLng {
	return LatLng{Lat: (a.Lat + b.Lat) / 2, Lng: (a.Lng + b.Lng) / 2}
}

// ClusterStops greedily merges stops that are within threshold miles of any
// stop already in a cluster. Each cluster becomes one search point at its
// centroid; a cluster of one keeps the stop's own name and type.
func ClusterStops(stops []Stop, threshold float64) []SearchPoint {
	if len(stops) == 0 {
		return nil
	}

	used := make([]bool, len(stops))
	var points []SearchPoint

	for i := range stops {
		if used[i] {
			continue
		}
		used[i] = true
		cluster := []Stop{stops[i]}

		for j := range stops {
			if used[j] {
				continue
			}
			for _, member := range cluster {
				if Haversine(member.Lat, member.Lng, stops[j].Lat, stops[j].Lng) <= threshold {
					cluster = append(cluster, stops[j])
					used[j] = true
					break
				}
			}
		}

		points = append(points, clusterPoint(cluster))
	}
	return points
}

func clusterPoint(cluster []Stop) SearchPoint {
	if len(cluster) == 1 {
		s := cluster[0]
		return SearchPoint{Name: s.Name, Lat: s.Lat, Lng: s.Lng, Type: s.Type}
	}

	var lat, lng float64
	names := make([]string, 0, len(cluster))
	for _, s := range cluster {
		lat += s.Lat
		lng += s.Lng
		names = append(names, s.Name)
	}
	n := float64(len(cluster))

	preview := names
	if len(preview) > clusterNamePreviewSize {
		preview = preview[:clusterNamePreviewSize]
	}
	name := "Cluster: " + strings.Join(preview, ", ")
	if extra := len(names) - clusterNamePreviewSize; extra > 0 {
		name += fmt.Sprintf(" +%d more", extra)
	}

	return SearchPoint{
		Name:          name,
		Lat:           lat / n,
		Lng:           lng / n,
		Type:          "clustered_stops",
		StopCount:     len(cluster),
		OriginalStops: names,
	}
}
