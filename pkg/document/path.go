package document

import (
	"sort"
	"strconv"
	"strings"
)

// SplitPath splits a dotted field path into its segments
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// ArrayIndex parses a path segment as a non-negative array index
func ArrayIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Resolve returns every value addressed by the dotted path.
//
// When an intermediate value is an array, a numeric next segment indexes into
// it; any other segment fans out over the document (and DBRef) elements and
// the results are concatenated. A missing path yields an empty slice.
func (d *Document) Resolve(path string) []Value {
	return resolve(Doc(d), SplitPath(path), nil)
}

func resolve(v Value, segs []string, out []Value) []Value {
	if len(segs) == 0 {
		return append(out, v)
	}
	switch v.Type {
	case TypeDocument:
		doc, _ := v.Document()
		child, ok := doc.Get(segs[0])
		if !ok {
			return out
		}
		return resolve(child, segs[1:], out)
	case TypeDBRef:
		child, ok := dbrefField(v, segs[0])
		if !ok {
			return out
		}
		return resolve(child, segs[1:], out)
	case TypeArray:
		arr, _ := v.Array()
		if i, ok := ArrayIndex(segs[0]); ok {
			if i < len(arr) {
				return resolve(arr[i], segs[1:], out)
			}
			return out
		}
		for _, elem := range arr {
			if elem.Type == TypeDocument || elem.Type == TypeDBRef {
				out = resolve(elem, segs, out)
			}
		}
		return out
	default:
		return out
	}
}

func dbrefField(v Value, name string) (Value, bool) {
	ref, _ := v.DBRef()
	switch name {
	case "$ref":
		return String(ref.Collection), true
	case "$id":
		return ref.ID, true
	case "$db":
		if ref.DB == "" {
			return Value{}, false
		}
		return String(ref.DB), true
	}
	return Value{}, false
}

// Lookup follows a dotted path without array fan-out. Numeric segments index
// into arrays; any other segment must address a document field.
func (d *Document) Lookup(path string) (Value, bool) {
	cur := Doc(d)
	for _, seg := range SplitPath(path) {
		switch cur.Type {
		case TypeDocument:
			doc, _ := cur.Document()
			next, ok := doc.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = next
		case TypeDBRef:
			next, ok := dbrefField(cur, seg)
			if !ok {
				return Value{}, false
			}
			cur = next
		case TypeArray:
			arr, _ := cur.Array()
			i, ok := ArrayIndex(seg)
			if !ok || i >= len(arr) {
				return Value{}, false
			}
			cur = arr[i]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// SetPath assigns a value at a dotted path, creating intermediate documents.
// It does not descend into arrays; an intermediate non-document is replaced.
func (d *Document) SetPath(path string, value interface{}) {
	segs := SplitPath(path)
	cur := d
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur.Get(seg)
		child, isDoc := next.Document()
		if !ok || !isDoc {
			child = NewDocument()
			cur.Set(seg, child)
		}
		cur = child
	}
	cur.Set(segs[len(segs)-1], value)
}

// Project copies the parts of d addressed by paths into a new document that
// keeps the nesting of the original. Resolving any of the paths against the
// result yields the same values as resolving them against d, which is what
// lets index keys be matched with the same filters as whole documents.
func Project(d *Document, paths []string) *Document {
	out := NewDocument()
	for _, p := range coveringPaths(paths) {
		projectInto(out, d, SplitPath(p))
	}
	return out
}

// coveringPaths drops paths already covered by a shorter prefix path, keeping
// the original order of the rest
func coveringPaths(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	covered := make(map[string]bool)
	for i, p := range sorted {
		for _, q := range sorted[:i] {
			if strings.HasPrefix(p, q+".") {
				covered[p] = true
				break
			}
		}
	}
	result := make([]string, 0, len(paths))
	seen := make(map[string]bool)
	for _, p := range paths {
		if covered[p] || seen[p] {
			continue
		}
		seen[p] = true
		result = append(result, p)
	}
	return result
}

func projectInto(dst, src *Document, segs []string) {
	v, ok := src.Get(segs[0])
	if !ok {
		return
	}
	if len(segs) == 1 {
		dst.Set(segs[0], v.Clone())
		return
	}
	existing, hasExisting := dst.Get(segs[0])
	switch v.Type {
	case TypeDocument:
		doc, _ := v.Document()
		child, isDoc := existing.Document()
		if !hasExisting || !isDoc {
			child = NewDocument()
		}
		projectInto(child, doc, segs[1:])
		if child.Len() > 0 || hasExisting {
			dst.Set(segs[0], child)
		}
	case TypeArray:
		arr, _ := v.Array()
		var prev []Value
		if hasExisting {
			prev, _ = existing.Array()
		}
		dst.Set(segs[0], Array(projectArray(arr, prev, segs[1:])...))
	case TypeDBRef:
		dst.Set(segs[0], v.Clone())
	}
}

// projectArray keeps array positions: untouched slots become empty documents
// so several paths through the same array can be merged element by element.
func projectArray(arr, prev []Value, segs []string) []Value {
	out := make([]Value, len(arr))
	for i := range arr {
		if i < len(prev) {
			out[i] = prev[i]
		} else {
			out[i] = Doc(NewDocument())
		}
	}
	if idx, ok := ArrayIndex(segs[0]); ok {
		if idx < len(arr) {
			out[idx] = projectElement(arr[idx], out[idx], segs[1:])
		}
		return out
	}
	for i, elem := range arr {
		switch elem.Type {
		case TypeDocument:
			doc, _ := elem.Document()
			child, isDoc := out[i].Document()
			if !isDoc {
				child = NewDocument()
			}
			projectInto(child, doc, segs)
			out[i] = Doc(child)
		case TypeDBRef:
			out[i] = elem.Clone()
		}
	}
	return out
}

func projectElement(elem, prev Value, rest []string) Value {
	if len(rest) == 0 {
		return elem.Clone()
	}
	switch elem.Type {
	case TypeDocument:
		doc, _ := elem.Document()
		child, isDoc := prev.Document()
		if !isDoc {
			child = NewDocument()
		}
		projectInto(child, doc, rest)
		return Doc(child)
	case TypeArray:
		arr, _ := elem.Array()
		prevArr, _ := prev.Array()
		return Array(projectArray(arr, prevArr, rest)...)
	case TypeDBRef:
		return elem.Clone()
	}
	return prev
}
