package query

import (
	"fmt"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// Projection selects the fields returned by a find
type Projection struct {
	paths     []string
	include   bool
	excludeID bool
}

// ParseProjection reads a projection such as {a: 1, "b.c": 1} or {a: 0}.
// Inclusion and exclusion cannot be mixed, except for _id.
func ParseProjection(spec *document.Document) (*Projection, error) {
	if spec == nil || spec.Len() == 0 {
		return nil, nil
	}
	p := &Projection{}
	modeSet := false
	for _, key := range spec.Keys() {
		v, _ := spec.Get(key)
		include := v.Truthy()
		if key == document.IDField {
			p.excludeID = !include
			continue
		}
		if modeSet && include != p.include {
			return nil, fmt.Errorf("projection cannot mix inclusion and exclusion (field %q)", key)
		}
		p.include, modeSet = include, true
		p.paths = append(p.paths, key)
	}
	if !modeSet {
		// only _id was given
		p.include = !p.excludeID
		if p.include {
			p.paths = []string{document.IDField}
		}
	}
	return p, nil
}

// Apply returns a new document holding the projected fields of doc
func (p *Projection) Apply(doc *document.Document) *document.Document {
	if p == nil {
		return doc
	}
	if p.include {
		out := document.Project(doc, p.paths)
		if id, ok := doc.ID(); ok && !p.excludeID {
			out.SetFirst(document.IDField, id.Clone())
		}
		return out
	}

	out := doc.Clone()
	for _, path := range p.paths {
		unsetPath(out, document.SplitPath(path))
	}
	if p.excludeID {
		out.Delete(document.IDField)
	}
	return out
}

// unsetPath removes path from doc, descending into the document elements of
// arrays on the way
func unsetPath(doc *document.Document, segs []string) {
	if len(segs) == 1 {
		doc.Delete(segs[0])
		return
	}
	v, ok := doc.Get(segs[0])
	if !ok {
		return
	}
	switch v.Type {
	case document.TypeDocument:
		child, _ := v.Document()
		unsetPath(child, segs[1:])
	case document.TypeArray:
		arr, _ := v.Array()
		for _, elem := range arr {
			if child, ok := elem.Document(); ok {
				unsetPath(child, segs[1:])
			}
		}
	}
}
