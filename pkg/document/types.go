package document

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Type represents the BSON data type of a value
type Type byte

const (
	TypeFloat64  Type = 0x01
	TypeString   Type = 0x02
	TypeDocument Type = 0x03
	TypeArray    Type = 0x04
	TypeBinary   Type = 0x05
	TypeObjectID Type = 0x07
	TypeBoolean  Type = 0x08
	TypeDateTime Type = 0x09
	TypeNull     Type = 0x0A
	TypeRegex    Type = 0x0B
	TypeDBRef    Type = 0x0C
	TypeInt32    Type = 0x10
	TypeInt64    Type = 0x12
	TypeMaxKey   Type = 0x7F
	TypeMinKey   Type = 0xFF
)

// Types lists every value kind, in no particular order
var Types = []Type{
	TypeMinKey, TypeNull, TypeInt32, TypeInt64, TypeFloat64, TypeString,
	TypeDocument, TypeDBRef, TypeArray, TypeBinary, TypeObjectID,
	TypeBoolean, TypeDateTime, TypeRegex, TypeMaxKey,
}

// String returns the string representation of the type
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "bool"
	case TypeInt32:
		return "int"
	case TypeInt64:
		return "long"
	case TypeFloat64:
		return "double"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binData"
	case TypeObjectID:
		return "objectId"
	case TypeArray:
		return "array"
	case TypeDocument:
		return "object"
	case TypeDateTime:
		return "date"
	case TypeRegex:
		return "regex"
	case TypeDBRef:
		return "dbref"
	case TypeMinKey:
		return "minKey"
	case TypeMaxKey:
		return "maxKey"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// IsNumeric reports whether the type is one of the numeric kinds
func (t Type) IsNumeric() bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeFloat64
}

// MinKey is the value that sorts before every other value
type MinKey struct{}

// MaxKey is the value that sorts after every other value
type MaxKey struct{}

// Regex is a stored regular expression with MongoDB-style option letters
type Regex struct {
	Pattern string
	Options string
}

// Compile translates the option letters (i, m, s, x) into Go regexp flags
func (r Regex) Compile() (*regexp.Regexp, error) {
	var flags strings.Builder
	pattern := r.Pattern
	for _, o := range r.Options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		case 'x':
			pattern = stripExtended(pattern)
		default:
			return nil, fmt.Errorf("invalid regex option %q", o)
		}
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func stripExtended(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			b.WriteRune(r)
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r Regex) String() string {
	return "/" + r.Pattern + "/" + r.Options
}

// DBRef is a reference to a document in another collection
type DBRef struct {
	Collection string
	ID         Value
	DB         string
}

// Document returns the {$ref, $id, $db} form of the reference
func (r DBRef) Document() *Document {
	d := NewDocument()
	d.Set("$ref", r.Collection)
	d.Set("$id", r.ID)
	if r.DB != "" {
		d.Set("$db", r.DB)
	}
	return d
}

// Value represents a typed value in a document.
//
// Data holds, by Type: nil (Null, MinKey, MaxKey), bool, int32, int64,
// float64, string, []Value (Array), *Document, []byte (Binary), ObjectID,
// time.Time (DateTime), Regex or DBRef.
type Value struct {
	Type Type
	Data interface{}
}

// NewValue creates a new typed value from a Go value. Other slices, arrays,
// string-keyed maps, pointers and named scalar types are converted by
// reflection; structs, channels and functions become Null.
func NewValue(data interface{}) Value {
	switch v := data.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case *Value:
		if v == nil {
			return Null()
		}
		return *v
	case bool:
		return Value{Type: TypeBoolean, Data: v}
	case int32:
		return Int32(v)
	case int64:
		return Int64(v)
	case int:
		return Int64(int64(v))
	case int8:
		return Int32(int32(v))
	case int16:
		return Int32(int32(v))
	case uint8:
		return Int32(int32(v))
	case uint16:
		return Int32(int32(v))
	case uint32:
		return Int64(int64(v))
	case uint:
		return uintValue(uint64(v))
	case uint64:
		return uintValue(v)
	case float64:
		return Float64(v)
	case float32:
		return Float64(float64(v))
	case string:
		return String(v)
	case []byte:
		return Value{Type: TypeBinary, Data: v}
	case ObjectID:
		return Value{Type: TypeObjectID, Data: v}
	case time.Time:
		return Value{Type: TypeDateTime, Data: v}
	case Regex:
		return Value{Type: TypeRegex, Data: v}
	case *regexp.Regexp:
		return Value{Type: TypeRegex, Data: Regex{Pattern: v.String()}}
	case DBRef:
		return Value{Type: TypeDBRef, Data: v}
	case MinKey:
		return Value{Type: TypeMinKey}
	case MaxKey:
		return Value{Type: TypeMaxKey}
	case []Value:
		return Array(v...)
	case A:
		return arrayOf(v)
	case []interface{}:
		return arrayOf(v)
	case []string:
		arr := make([]Value, len(v))
		for i, s := range v {
			arr[i] = String(s)
		}
		return Array(arr...)
	case *Document:
		if v == nil {
			return Null()
		}
		return Value{Type: TypeDocument, Data: v}
	case D:
		return Value{Type: TypeDocument, Data: v.Document()}
	case M:
		return Value{Type: TypeDocument, Data: NewDocumentFromMap(v)}
	case map[string]interface{}:
		return Value{Type: TypeDocument, Data: NewDocumentFromMap(v)}
	default:
		return reflectValue(reflect.ValueOf(data))
	}
}

func reflectValue(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return NewValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null()
		}
		arr := make([]Value, rv.Len())
		for i := range arr {
			arr[i] = NewValue(rv.Index(i).Interface())
		}
		return Array(arr...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Null()
		}
		if rv.IsNil() {
			return Null()
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return Value{Type: TypeDocument, Data: NewDocumentFromMap(m)}
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Int32(int32(rv.Int()))
	case reflect.Int, reflect.Int64:
		return Int64(rv.Int())
	case reflect.Uint8, reflect.Uint16:
		return Int32(int32(rv.Uint()))
	case reflect.Uint32:
		return Int64(int64(rv.Uint()))
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float64(rv.Float())
	case reflect.String:
		return String(rv.String())
	}
	return Null()
}

func uintValue(v uint64) Value {
	if v > math.MaxInt64 {
		return Float64(float64(v))
	}
	return Int64(int64(v))
}

func arrayOf(items []interface{}) Value {
	arr := make([]Value, len(items))
	for i, item := range items {
		arr[i] = NewValue(item)
	}
	return Array(arr...)
}

// Null returns the null value
func Null() Value { return Value{Type: TypeNull} }

// Int32 returns a 32-bit integer value
func Int32(v int32) Value { return Value{Type: TypeInt32, Data: v} }

// Int64 returns a 64-bit integer value
func Int64(v int64) Value { return Value{Type: TypeInt64, Data: v} }

// Float64 returns a double value
func Float64(v float64) Value { return Value{Type: TypeFloat64, Data: v} }

// String returns a string value
func String(v string) Value { return Value{Type: TypeString, Data: v} }

// Bool returns a boolean value
func Bool(v bool) Value { return Value{Type: TypeBoolean, Data: v} }

// Array returns an array value holding the given elements
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Type: TypeArray, Data: items}
}

// Doc wraps a document as a value
func Doc(d *Document) Value { return Value{Type: TypeDocument, Data: d} }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.Type == TypeNull }

// IsNumber reports whether the value has a numeric kind
func (v Value) IsNumber() bool { return v.Type.IsNumeric() }

// Document returns the embedded document
func (v Value) Document() (*Document, bool) {
	d, ok := v.Data.(*Document)
	return d, ok && v.Type == TypeDocument
}

// Array returns the array elements
func (v Value) Array() ([]Value, bool) {
	arr, ok := v.Data.([]Value)
	return arr, ok && v.Type == TypeArray
}

// StringValue returns the string payload
func (v Value) StringValue() (string, bool) {
	s, ok := v.Data.(string)
	return s, ok && v.Type == TypeString
}

// BoolValue returns the boolean payload
func (v Value) BoolValue() (bool, bool) {
	b, ok := v.Data.(bool)
	return b, ok && v.Type == TypeBoolean
}

// Regex returns the regex payload
func (v Value) Regex() (Regex, bool) {
	r, ok := v.Data.(Regex)
	return r, ok && v.Type == TypeRegex
}

// DBRef returns the reference payload
func (v Value) DBRef() (DBRef, bool) {
	r, ok := v.Data.(DBRef)
	return r, ok && v.Type == TypeDBRef
}

// Time returns the date payload
func (v Value) Time() (time.Time, bool) {
	t, ok := v.Data.(time.Time)
	return t, ok && v.Type == TypeDateTime
}

// Int64Value returns the value as int64 for integral numeric kinds. Doubles
// are truncated.
func (v Value) Int64Value() (int64, bool) {
	switch n := v.Data.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// Float64Value returns any numeric kind as float64
func (v Value) Float64Value() (float64, bool) {
	switch n := v.Data.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Truthy follows the loose boolean interpretation used by flags such as $exists
func (v Value) Truthy() bool {
	switch v.Type {
	case TypeNull, TypeMinKey:
		return false
	case TypeBoolean:
		return v.Data.(bool)
	case TypeInt32, TypeInt64, TypeFloat64:
		f, _ := v.Float64Value()
		return f != 0
	}
	return true
}

// Clone returns a deep copy of the value
func (v Value) Clone() Value {
	switch v.Type {
	case TypeDocument:
		if d, ok := v.Document(); ok {
			return Doc(d.Clone())
		}
	case TypeArray:
		if arr, ok := v.Array(); ok {
			clone := make([]Value, len(arr))
			for i, item := range arr {
				clone[i] = item.Clone()
			}
			return Array(clone...)
		}
	case TypeBinary:
		if b, ok := v.Data.([]byte); ok {
			clone := make([]byte, len(b))
			copy(clone, b)
			return Value{Type: TypeBinary, Data: clone}
		}
	case TypeDBRef:
		if r, ok := v.DBRef(); ok {
			r.ID = r.ID.Clone()
			return Value{Type: TypeDBRef, Data: r}
		}
	}
	return v
}

// Interface converts the value back to plain Go types: documents become
// map[string]interface{} and arrays []interface{}
func (v Value) Interface() interface{} {
	switch v.Type {
	case TypeDocument:
		if d, ok := v.Document(); ok {
			return d.ToMap()
		}
	case TypeArray:
		if arr, ok := v.Array(); ok {
			result := make([]interface{}, len(arr))
			for i, item := range arr {
				result[i] = item.Interface()
			}
			return result
		}
	case TypeMinKey:
		return MinKey{}
	case TypeMaxKey:
		return MaxKey{}
	}
	return v.Data
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "null"
	case TypeString:
		return fmt.Sprintf("%q", v.Data)
	case TypeDocument:
		if d, ok := v.Document(); ok {
			return d.String()
		}
	case TypeArray:
		arr, _ := v.Array()
		parts := make([]string, len(arr))
		for i, item := range arr {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeDateTime:
		t, _ := v.Time()
		return t.UTC().Format(time.RFC3339Nano)
	case TypeDBRef:
		r, _ := v.DBRef()
		return "DBRef(" + r.Collection + ", " + r.ID.String() + ")"
	case TypeMinKey:
		return "MinKey"
	case TypeMaxKey:
		return "MaxKey"
	}
	return fmt.Sprintf("%v", v.Data)
}
