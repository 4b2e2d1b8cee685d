package geo

import (
	"fmt"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// PointFromValue reads a location stored in a document. Accepted forms are a
// legacy pair [x, y], an embedded document whose first two fields are numbers
// ({lng: x, lat: y}) and a GeoJSON point {type: "Point", coordinates: [x, y]}.
func PointFromValue(v document.Value) (Point, bool) {
	switch v.Type {
	case document.TypeArray:
		arr, _ := v.Array()
		return pair(arr)
	case document.TypeDocument:
		doc, _ := v.Document()
		if t, ok := doc.Get("type"); ok {
			if s, _ := t.StringValue(); s == "Point" {
				p, err := ParseGeoJSONPoint(doc)
				return p, err == nil
			}
			return Point{}, false
		}
		keys := doc.Keys()
		if len(keys) < 2 {
			return Point{}, false
		}
		x, _ := doc.Get(keys[0])
		y, _ := doc.Get(keys[1])
		return pair([]document.Value{x, y})
	}
	return Point{}, false
}

// Points returns every location held by v: either v itself, or the elements
// of an array of locations.
func Points(v document.Value) []Point {
	if p, ok := PointFromValue(v); ok {
		return []Point{p}
	}
	arr, ok := v.Array()
	if !ok {
		return nil
	}
	var out []Point
	for _, elem := range arr {
		if p, ok := PointFromValue(elem); ok {
			out = append(out, p)
		}
	}
	return out
}

func pair(arr []document.Value) (Point, bool) {
	if len(arr) < 2 {
		return Point{}, false
	}
	x, okX := arr[0].Float64Value()
	y, okY := arr[1].Float64Value()
	if !okX || !okY {
		return Point{}, false
	}
	return Point{Lon: x, Lat: y}, true
}

// ParseGeoJSONPoint parses a GeoJSON point document
func ParseGeoJSONPoint(doc *document.Document) (Point, error) {
	coordsRaw, ok := doc.Get("coordinates")
	if !ok {
		return Point{}, fmt.Errorf("missing coordinates field")
	}
	coords, ok := coordsRaw.Array()
	if !ok {
		return Point{}, fmt.Errorf("coordinates must be an array")
	}
	if len(coords) != 2 {
		return Point{}, fmt.Errorf("point coordinates must have 2 elements")
	}
	p, ok := pair(coords)
	if !ok {
		return Point{}, fmt.Errorf("point coordinates must be numbers")
	}
	if !World.Contains(p) {
		return Point{}, fmt.Errorf("longitude/latitude is out of bounds: %v", coords)
	}
	return p, nil
}

// ParseGeoJSONPolygon parses a GeoJSON polygon document
func ParseGeoJSONPolygon(doc *document.Document) (*Polygon, error) {
	coordsRaw, ok := doc.Get("coordinates")
	if !ok {
		return nil, fmt.Errorf("missing coordinates field")
	}
	rings, ok := coordsRaw.Array()
	if !ok {
		return nil, fmt.Errorf("coordinates must be an array")
	}
	if len(rings) == 0 {
		return nil, fmt.Errorf("polygon needs at least one ring")
	}

	polygonRings := make([][]Point, len(rings))
	for i, ringRaw := range rings {
		ring, ok := ringRaw.Array()
		if !ok {
			return nil, fmt.Errorf("ring must be an array")
		}
		points, err := pointList(ring)
		if err != nil {
			return nil, err
		}
		if len(points) < 4 || points[0] != points[len(points)-1] {
			return nil, fmt.Errorf("ring %d must be closed and have at least 4 points", i)
		}
		polygonRings[i] = points
	}
	return NewPolygon(polygonRings), nil
}

func pointList(values []document.Value) ([]Point, error) {
	points := make([]Point, len(values))
	for i, raw := range values {
		arr, ok := raw.Array()
		if !ok {
			return nil, fmt.Errorf("point must be an array")
		}
		p, ok := pair(arr)
		if !ok || len(arr) != 2 {
			return nil, fmt.Errorf("point must have 2 numeric coordinates")
		}
		points[i] = p
	}
	return points, nil
}

// ParseShape reads a $geoWithin argument: one of $box, $center,
// $centerSphere, $polygon or $geometry (GeoJSON Polygon)
func ParseShape(spec *document.Document) (Shape, error) {
	if spec.Len() != 1 {
		return nil, fmt.Errorf("$geoWithin takes exactly one shape, got %d fields", spec.Len())
	}
	name := spec.Keys()[0]
	arg, _ := spec.Get(name)

	switch name {
	case "$box":
		corners, ok := arg.Array()
		if !ok || len(corners) != 2 {
			return nil, fmt.Errorf("$box takes two corner points")
		}
		a, okA := PointFromValue(corners[0])
		b, okB := PointFromValue(corners[1])
		if !okA || !okB {
			return nil, fmt.Errorf("$box corners must be points")
		}
		return NewBox(a, b), nil
	case "$center", "$centerSphere":
		parts, ok := arg.Array()
		if !ok || len(parts) != 2 {
			return nil, fmt.Errorf("%s takes [center, radius]", name)
		}
		center, ok := PointFromValue(parts[0])
		if !ok {
			return nil, fmt.Errorf("%s center must be a point", name)
		}
		radius, ok := parts[1].Float64Value()
		if !ok || radius < 0 {
			return nil, fmt.Errorf("%s radius must be a non-negative number", name)
		}
		mode := Planar
		if name == "$centerSphere" {
			mode = Spherical
		}
		return &Circle{Center: center, Radius: radius, Mode: mode}, nil
	case "$polygon":
		vertices, ok := arg.Array()
		if !ok || len(vertices) < 3 {
			return nil, fmt.Errorf("$polygon needs at least 3 points")
		}
		ring := make([]Point, len(vertices))
		for i, v := range vertices {
			p, ok := PointFromValue(v)
			if !ok {
				return nil, fmt.Errorf("$polygon vertex %d is not a point", i)
			}
			ring[i] = p
		}
		return NewPolygon([][]Point{ring}), nil
	case "$geometry":
		doc, ok := arg.Document()
		if !ok {
			return nil, fmt.Errorf("$geometry must be a GeoJSON object")
		}
		t, _ := doc.Get("type")
		if s, _ := t.StringValue(); s != "Polygon" {
			return nil, fmt.Errorf("unsupported $geometry type %s for $geoWithin", t)
		}
		return ParseGeoJSONPolygon(doc)
	}
	return nil, fmt.Errorf("unknown $geoWithin shape %s", name)
}
