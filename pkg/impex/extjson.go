package impex

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// MarshalDocument encodes doc as extended JSON. Field order is kept and
// every value kind survives a round trip through UnmarshalDocument.
func MarshalDocument(doc *document.Document) ([]byte, error) {
	return appendDocument(nil, doc)
}

// UnmarshalDocument decodes one extended-JSON document
func UnmarshalDocument(data []byte) (*document.Document, error) {
	r := newReader(bytes.NewReader(data))
	v, err := r.value()
	if err != nil {
		return nil, err
	}
	doc, ok := v.Document()
	if !ok {
		return nil, fmt.Errorf("expected a document, got %s", v.Type)
	}
	return doc, nil
}

func appendDocument(b []byte, doc *document.Document) ([]byte, error) {
	b = append(b, '{')
	for i, key := range doc.Keys() {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendString(b, key)
		b = append(b, ':')
		v, _ := doc.Get(key)
		var err error
		if b, err = appendValue(b, v); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
	}
	return append(b, '}'), nil
}

func appendValue(b []byte, v document.Value) ([]byte, error) {
	switch v.Type {
	case document.TypeNull:
		return append(b, "null"...), nil
	case document.TypeBoolean:
		t, _ := v.BoolValue()
		return strconv.AppendBool(b, t), nil
	case document.TypeString:
		s, _ := v.StringValue()
		return appendString(b, s), nil
	case document.TypeInt32:
		n, _ := v.Int64Value()
		return strconv.AppendInt(b, n, 10), nil
	case document.TypeInt64:
		n, _ := v.Int64Value()
		b = append(b, `{"$numberLong":"`...)
		b = strconv.AppendInt(b, n, 10)
		return append(b, `"}`...), nil
	case document.TypeFloat64:
		f, _ := v.Float64Value()
		return appendFloat(b, f), nil
	case document.TypeDocument:
		doc, _ := v.Document()
		return appendDocument(b, doc)
	case document.TypeArray:
		arr, _ := v.Array()
		b = append(b, '[')
		for i, elem := range arr {
			if i > 0 {
				b = append(b, ',')
			}
			var err error
			if b, err = appendValue(b, elem); err != nil {
				return nil, err
			}
		}
		return append(b, ']'), nil
	case document.TypeBinary:
		data, _ := v.Data.([]byte)
		b = append(b, `{"$binary":{"base64":`...)
		b = appendString(b, base64.StdEncoding.EncodeToString(data))
		return append(b, `,"subType":"00"}}`...), nil
	case document.TypeObjectID:
		id, _ := v.Data.(document.ObjectID)
		b = append(b, `{"$oid":`...)
		b = appendString(b, id.Hex())
		return append(b, '}'), nil
	case document.TypeDateTime:
		t, _ := v.Time()
		b = append(b, `{"$date":`...)
		b = appendString(b, t.UTC().Format(time.RFC3339Nano))
		return append(b, '}'), nil
	case document.TypeRegex:
		re, _ := v.Regex()
		b = append(b, `{"$regex":`...)
		b = appendString(b, re.Pattern)
		b = append(b, `,"$options":`...)
		b = appendString(b, re.Options)
		return append(b, '}'), nil
	case document.TypeDBRef:
		ref, _ := v.DBRef()
		b = append(b, `{"$ref":`...)
		b = appendString(b, ref.Collection)
		b = append(b, `,"$id":`...)
		var err error
		if b, err = appendValue(b, ref.ID); err != nil {
			return nil, err
		}
		if ref.DB != "" {
			b = append(b, `,"$db":`...)
			b = appendString(b, ref.DB)
		}
		return append(b, '}'), nil
	case document.TypeMinKey:
		return append(b, `{"$minKey":1}`...), nil
	case document.TypeMaxKey:
		return append(b, `{"$maxKey":1}`...), nil
	}
	return nil, fmt.Errorf("cannot encode value of type %s", v.Type)
}

func appendString(b []byte, s string) []byte {
	// strings always marshal
	enc, _ := json.Marshal(s)
	return append(b, enc...)
}

// appendFloat writes doubles so that they decode as doubles again
func appendFloat(b []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(b, `{"$numberDouble":"NaN"}`...)
	case math.IsInf(f, 1):
		return append(b, `{"$numberDouble":"Infinity"}`...)
	case math.IsInf(f, -1):
		return append(b, `{"$numberDouble":"-Infinity"}`...)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return append(b, s...)
}

// extended converts the decoded form of an extended-JSON wrapper into the
// value it stands for. Documents that are not wrappers are returned as is.
func extended(doc *document.Document) (document.Value, error) {
	keys := doc.Keys()
	if len(keys) == 0 || !strings.HasPrefix(keys[0], "$") {
		return document.Doc(doc), nil
	}
	get := func(key string) document.Value {
		v, _ := doc.Get(key)
		return v
	}
	str := func(key string) (string, error) {
		s, ok := get(key).StringValue()
		if !ok {
			return "", fmt.Errorf("%s must be a string", key)
		}
		return s, nil
	}

	switch {
	case len(keys) == 1 && keys[0] == "$oid":
		s, err := str("$oid")
		if err != nil {
			return document.Value{}, err
		}
		id, err := document.ObjectIDFromHex(s)
		if err != nil {
			return document.Value{}, fmt.Errorf("invalid $oid %q: %w", s, err)
		}
		return document.NewValue(id), nil

	case len(keys) == 1 && keys[0] == "$date":
		return parseDate(get("$date"))

	case len(keys) == 1 && keys[0] == "$numberLong":
		s, err := str("$numberLong")
		if err != nil {
			return document.Value{}, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return document.Value{}, fmt.Errorf("invalid $numberLong %q", s)
		}
		return document.Int64(n), nil

	case len(keys) == 1 && keys[0] == "$numberInt":
		s, err := str("$numberInt")
		if err != nil {
			return document.Value{}, err
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return document.Value{}, fmt.Errorf("invalid $numberInt %q", s)
		}
		return document.Int32(int32(n)), nil

	case len(keys) == 1 && keys[0] == "$numberDouble":
		s, err := str("$numberDouble")
		if err != nil {
			return document.Value{}, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return document.Value{}, fmt.Errorf("invalid $numberDouble %q", s)
		}
		return document.Float64(f), nil

	case keys[0] == "$regex" && len(keys) <= 2:
		pattern, err := str("$regex")
		if err != nil {
			return document.Value{}, err
		}
		re := document.Regex{Pattern: pattern}
		if doc.Has("$options") {
			if re.Options, err = str("$options"); err != nil {
				return document.Value{}, err
			}
		} else if len(keys) == 2 {
			return document.Doc(doc), nil
		}
		return document.NewValue(re), nil

	case len(keys) == 1 && keys[0] == "$regularExpression":
		inner, ok := get("$regularExpression").Document()
		if !ok {
			return document.Value{}, fmt.Errorf("$regularExpression must be a document")
		}
		pattern, _ := inner.Get("pattern")
		options, _ := inner.Get("options")
		re := document.Regex{}
		re.Pattern, _ = pattern.StringValue()
		re.Options, _ = options.StringValue()
		return document.NewValue(re), nil

	case keys[0] == "$binary":
		return parseBinary(doc)

	case len(keys) == 1 && keys[0] == "$minKey":
		return document.NewValue(document.MinKey{}), nil

	case len(keys) == 1 && keys[0] == "$maxKey":
		return document.NewValue(document.MaxKey{}), nil

	case keys[0] == "$ref" && len(keys) >= 2 && keys[1] == "$id":
		coll, err := str("$ref")
		if err != nil {
			return document.Value{}, err
		}
		ref := document.DBRef{Collection: coll, ID: get("$id")}
		if doc.Has("$db") {
			if ref.DB, err = str("$db"); err != nil {
				return document.Value{}, err
			}
		}
		return document.NewValue(ref), nil
	}
	return document.Doc(doc), nil
}

// parseDate accepts RFC 3339 strings and milliseconds since the epoch
func parseDate(v document.Value) (document.Value, error) {
	if s, ok := v.StringValue(); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return document.Value{}, fmt.Errorf("invalid $date %q: %w", s, err)
		}
		return document.NewValue(t.UTC()), nil
	}
	if ms, ok := v.Int64Value(); ok && v.Type != document.TypeFloat64 {
		return document.NewValue(time.UnixMilli(ms).UTC()), nil
	}
	return document.Value{}, fmt.Errorf("invalid $date of type %s", v.Type)
}

func parseBinary(doc *document.Document) (document.Value, error) {
	raw, _ := doc.Get("$binary")
	var encoded string
	if inner, ok := raw.Document(); ok {
		b64, _ := inner.Get("base64")
		encoded, _ = b64.StringValue()
	} else if s, ok := raw.StringValue(); ok {
		encoded = s
	} else {
		return document.Value{}, fmt.Errorf("invalid $binary of type %s", raw.Type)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return document.Value{}, fmt.Errorf("invalid $binary payload: %w", err)
	}
	return document.NewValue(data), nil
}

// number converts a JSON number: integers that fit 32 bits become int32,
// larger ones int64, anything with a fraction or exponent a double
func number(s string) (document.Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				return document.Int32(int32(n)), nil
			}
			return document.Int64(n), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return document.Value{}, fmt.Errorf("invalid number %q", s)
	}
	return document.Float64(f), nil
}

// isHexObjectID reports whether s looks like the hex form of an ObjectID
func isHexObjectID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
