package geo

// Shape is a region used by $geoWithin
type Shape interface {
	Contains(p Point) bool
	Bounds() BoundingBox
}

// Box is an axis-aligned rectangle ($box)
type Box struct {
	BoundingBox
}

func NewBox(a, b Point) *Box {
	return &Box{BoundingBox{
		MinLon: min(a.Lon, b.Lon), MinLat: min(a.Lat, b.Lat),
		MaxLon: max(a.Lon, b.Lon), MaxLat: max(a.Lat, b.Lat),
	}}
}

func (b *Box) Bounds() BoundingBox { return b.BoundingBox }

// Circle is a disc around a center point. Planar circles ($center) use
// coordinate units, spherical ones ($centerSphere) a radius in radians.
type Circle struct {
	Center Point
	Radius float64
	Mode   Mode
}

func (c *Circle) Contains(p Point) bool {
	if c.Mode == Spherical {
		return SphericalDistance(c.Center, p) <= c.Radius
	}
	return Distance2D(c.Center, p) <= c.Radius
}

func (c *Circle) Bounds() BoundingBox {
	return SearchBounds(c.Center, c.Radius, c.Mode)
}

// Polygon represents a closed polygon
type Polygon struct {
	// Outer ring (first element) and holes (remaining elements)
	Rings [][]Point
}

func NewPolygon(rings [][]Point) *Polygon {
	return &Polygon{Rings: rings}
}

func (p *Polygon) Contains(pt Point) bool {
	return PointInPolygon(pt, p)
}

// Bounds is computed from the outer ring
func (p *Polygon) Bounds() BoundingBox {
	if len(p.Rings) == 0 || len(p.Rings[0]) == 0 {
		return BoundingBox{}
	}

	bb := p.Rings[0][0].Bounds()
	for _, point := range p.Rings[0] {
		bb.MinLon = min(bb.MinLon, point.Lon)
		bb.MaxLon = max(bb.MaxLon, point.Lon)
		bb.MinLat = min(bb.MinLat, point.Lat)
		bb.MaxLat = max(bb.MaxLat, point.Lat)
	}
	return bb
}

// Helper is the geometry collaborator used by the geospatial operators
type Helper interface {
	Distance(p1, p2 Point, mode Mode) float64
	Within(p Point, shape Shape) bool
}

// DefaultHelper implements Helper with the functions of this package
type DefaultHelper struct{}

func (DefaultHelper) Distance(p1, p2 Point, mode Mode) float64 {
	if mode == Spherical {
		return SphericalDistance(p1, p2)
	}
	return Distance2D(p1, p2)
}

func (DefaultHelper) Within(p Point, shape Shape) bool {
	return shape.Contains(p)
}
