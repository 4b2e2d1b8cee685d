package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// KeyKind is the direction or geo mode of one key field
type KeyKind int

const (
	Ascending   KeyKind = 1
	Descending  KeyKind = -1
	Geo2D       KeyKind = 2 // 2d planar geospatial key
	Geo2DSphere KeyKind = 3 // 2dsphere spherical geospatial key
)

// IsGeo reports whether the key is a 2d or 2dsphere key
func (k KeyKind) IsGeo() bool {
	return k == Geo2D || k == Geo2DSphere
}

func (k KeyKind) value() document.Value {
	switch k {
	case Geo2D:
		return document.String("2d")
	case Geo2DSphere:
		return document.String("2dsphere")
	}
	return document.Int32(int32(k))
}

func (k KeyKind) String() string {
	switch k {
	case Geo2D:
		return "2d"
	case Geo2DSphere:
		return "2dsphere"
	}
	return strconv.Itoa(int(k))
}

// KeyField is one field of an index key
type KeyField struct {
	Path string
	Kind KeyKind
}

// ParseKeys reads a key specification such as {email: 1} or
// {loc: "2dsphere", category: -1}
func ParseKeys(spec *document.Document) ([]KeyField, error) {
	if spec == nil || spec.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key specification", ErrInvalidKeySpec)
	}
	keys := make([]KeyField, 0, spec.Len())
	for _, path := range spec.Keys() {
		v, _ := spec.Get(path)
		kind, err := parseKind(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidKeySpec, path, err)
		}
		keys = append(keys, KeyField{Path: path, Kind: kind})
	}
	return keys, nil
}

func parseKind(v document.Value) (KeyKind, error) {
	if s, ok := v.StringValue(); ok {
		switch s {
		case "2d":
			return Geo2D, nil
		case "2dsphere":
			return Geo2DSphere, nil
		}
		return 0, fmt.Errorf("unsupported index type %q", s)
	}
	if !v.IsNumber() {
		return 0, fmt.Errorf("direction must be a number or a geo type, got %s", v.Type)
	}
	f, _ := v.Float64Value()
	switch {
	case f > 0:
		return Ascending, nil
	case f < 0:
		return Descending, nil
	}
	return 0, fmt.Errorf("direction cannot be zero")
}

// KeysDocument renders keys back into specification form
func KeysDocument(keys []KeyField) *document.Document {
	d := document.NewDocument()
	for _, k := range keys {
		d.Set(k.Path, k.Kind.value())
	}
	return d
}

// DefaultName builds the conventional index name, e.g. "email_1" or
// "loc_2dsphere_category_-1"
func DefaultName(keys []KeyField) string {
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k.Path, k.Kind.String())
	}
	return strings.Join(parts, "_")
}
