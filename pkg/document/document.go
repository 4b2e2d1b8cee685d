package document

import (
	"sort"
	"strings"
)

// IDField is the name of the identifier field every stored document carries
const IDField = "_id"

// E is a single ordered element of a D literal
type E struct {
	Key   string
	Value interface{}
}

// D is an ordered document literal
type D []E

// A is an array literal
type A []interface{}

// M is an unordered document literal; keys are sorted when converted
type M map[string]interface{}

// Document converts the literal into a Document preserving element order
func (d D) Document() *Document {
	doc := NewDocument()
	for _, e := range d {
		doc.Set(e.Key, e.Value)
	}
	return doc
}

// Document represents a BSON-like document (key-value pairs)
type Document struct {
	fields map[string]Value
	order  []string // Maintain insertion order
}

// NewDocument creates a new empty document
func NewDocument() *Document {
	return &Document{
		fields: make(map[string]Value),
		order:  make([]string, 0),
	}
}

// NewDocumentFromMap creates a document from a map. Go maps are unordered,
// so keys are added in sorted order with _id first.
func NewDocumentFromMap(m map[string]interface{}) *Document {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == IDField || keys[j] == IDField {
			return keys[i] == IDField
		}
		return keys[i] < keys[j]
	})
	doc := NewDocument()
	for _, k := range keys {
		doc.Set(k, m[k])
	}
	return doc
}

// Set sets a field value in the document. Existing fields keep their position.
func (d *Document) Set(key string, value interface{}) {
	if _, exists := d.fields[key]; !exists {
		d.order = append(d.order, key)
	}
	d.fields[key] = NewValue(value)
}

// SetFirst sets a field and moves it to the front of the document
func (d *Document) SetFirst(key string, value interface{}) {
	d.Delete(key)
	d.order = append([]string{key}, d.order...)
	d.fields[key] = NewValue(value)
}

// Get retrieves a field value from the document
func (d *Document) Get(key string) (Value, bool) {
	v, ok := d.fields[key]
	return v, ok
}

// Has checks if a field exists in the document
func (d *Document) Has(key string) bool {
	_, ok := d.fields[key]
	return ok
}

// Delete removes a field from the document
func (d *Document) Delete(key string) {
	if _, ok := d.fields[key]; !ok {
		return
	}

	delete(d.fields, key)

	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Keys returns all field names in insertion order
func (d *Document) Keys() []string {
	keys := make([]string, len(d.order))
	copy(keys, d.order)
	return keys
}

// Len returns the number of fields in the document
func (d *Document) Len() int {
	return len(d.fields)
}

// ID returns the _id value
func (d *Document) ID() (Value, bool) {
	return d.Get(IDField)
}

// ToMap converts the document to a map[string]interface{}
func (d *Document) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(d.fields))
	for k, v := range d.fields {
		m[k] = v.Interface()
	}
	return m
}

// Clone creates a deep copy of the document
func (d *Document) Clone() *Document {
	clone := &Document{
		fields: make(map[string]Value, len(d.fields)),
		order:  make([]string, len(d.order)),
	}
	copy(clone.order, d.order)
	for k, v := range d.fields {
		clone.fields[k] = v.Clone()
	}
	return clone
}

// String returns a string representation of the document
func (d *Document) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, k := range d.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(d.fields[k].String())
	}
	b.WriteString("}")
	return b.String()
}
