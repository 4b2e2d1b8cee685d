package geo

import (
	"github.com/mmcloughlin/geohash"
)

// DefaultGeohashPrecision is the number of geohash characters used for index
// cells, about 1.2km x 0.6km at the equator
const DefaultGeohashPrecision = 6

// Geohash encodes p as a geohash of the given number of characters. Points
// outside longitude/latitude range cannot be hashed.
func Geohash(p Point, precision uint) (string, bool) {
	if !World.Contains(p) || precision == 0 {
		return "", false
	}
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, precision), true
}

// CellBounds returns the region covered by a geohash cell
func CellBounds(hash string) BoundingBox {
	b := geohash.BoundingBox(hash)
	return BoundingBox{MinLon: b.MinLng, MinLat: b.MinLat, MaxLon: b.MaxLng, MaxLat: b.MaxLat}
}
