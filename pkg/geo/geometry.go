// Package geo holds the distance and containment primitives behind the
// geospatial query operators and geo index pruning.
package geo

import (
	"math"
)

// EarthRadius is the mean earth radius in meters
const EarthRadius = 6371000.0

// Mode selects the distance model
type Mode int

const (
	// Planar measures Euclidean distance in coordinate units (2d)
	Planar Mode = iota
	// Spherical measures great-circle distance in radians (2dsphere)
	Spherical
)

func (m Mode) String() string {
	if m == Spherical {
		return "2dsphere"
	}
	return "2d"
}

// Point represents a coordinate pair.
// For 2d: [x, y]
// For 2dsphere: [longitude, latitude] in degrees
type Point struct {
	Lon float64 // X coordinate or Longitude
	Lat float64 // Y coordinate or Latitude
}

func NewPoint(lon, lat float64) Point {
	return Point{Lon: lon, Lat: lat}
}

// Bounds returns the degenerate box around the point
func (p Point) Bounds() BoundingBox {
	return BoundingBox{MinLon: p.Lon, MinLat: p.Lat, MaxLon: p.Lon, MaxLat: p.Lat}
}

// BoundingBox represents a rectangular bounding box
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// World covers every valid longitude/latitude
var World = BoundingBox{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}

// Contains checks if a point is within the bounding box, edges included
func (bb BoundingBox) Contains(p Point) bool {
	return p.Lon >= bb.MinLon && p.Lon <= bb.MaxLon &&
		p.Lat >= bb.MinLat && p.Lat <= bb.MaxLat
}

// Intersects checks if two bounding boxes intersect
func (bb BoundingBox) Intersects(other BoundingBox) bool {
	return !(bb.MaxLon < other.MinLon || bb.MinLon > other.MaxLon ||
		bb.MaxLat < other.MinLat || bb.MinLat > other.MaxLat)
}

// Distance2D calculates Euclidean distance between two points (planar)
func Distance2D(p1, p2 Point) float64 {
	dx := p2.Lon - p1.Lon
	dy := p2.Lat - p1.Lat
	return math.Sqrt(dx*dx + dy*dy)
}

// SphericalDistance returns the great-circle angle between two points in
// radians, using the haversine formula
func SphericalDistance(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Lat)
	lat2 := toRadians(p2.Lat)
	deltaLat := toRadians(p2.Lat - p1.Lat)
	deltaLon := toRadians(p2.Lon - p1.Lon)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	if a > 1 {
		a = 1
	}
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// HaversineDistance returns the great-circle distance in meters
func HaversineDistance(p1, p2 Point) float64 {
	return EarthRadius * SphericalDistance(p1, p2)
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func toDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// SearchBounds returns a box guaranteed to contain every point within dist of
// center. For Spherical, dist is in radians and the box is clipped to World.
func SearchBounds(center Point, dist float64, mode Mode) BoundingBox {
	if mode == Planar {
		return BoundingBox{
			MinLon: center.Lon - dist, MinLat: center.Lat - dist,
			MaxLon: center.Lon + dist, MaxLat: center.Lat + dist,
		}
	}

	latDelta := toDegrees(dist)
	box := BoundingBox{
		MinLat: math.Max(center.Lat-latDelta, -90),
		MaxLat: math.Min(center.Lat+latDelta, 90),
		MinLon: -180,
		MaxLon: 180,
	}
	// a cap touching a pole spans every longitude
	if box.MaxLat >= 90 || box.MinLat <= -90 {
		return box
	}
	ratio := math.Sin(dist) / math.Cos(toRadians(center.Lat))
	if ratio >= 1 {
		return box
	}
	lonDelta := toDegrees(math.Asin(ratio))
	if center.Lon-lonDelta < -180 || center.Lon+lonDelta > 180 {
		return box
	}
	box.MinLon = center.Lon - lonDelta
	box.MaxLon = center.Lon + lonDelta
	return box
}

// PointInPolygon checks if a point is inside a polygon using ray casting algorithm
func PointInPolygon(point Point, polygon *Polygon) bool {
	if len(polygon.Rings) == 0 {
		return false
	}

	if !pointInRing(point, polygon.Rings[0]) {
		return false
	}

	// inside a hole means outside the polygon
	for i := 1; i < len(polygon.Rings); i++ {
		if pointInRing(point, polygon.Rings[i]) {
			return false
		}
	}

	return true
}

func pointInRing(point Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}

	inside := false
	j := len(ring) - 1

	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat

		intersect := ((yi > point.Lat) != (yj > point.Lat)) &&
			(point.Lon < (xj-xi)*(point.Lat-yi)/(yj-yi)+xi)

		if intersect {
			inside = !inside
		}

		j = i
	}

	return inside
}
