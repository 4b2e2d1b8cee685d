package impex

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sjyun/fongo-sub000/pkg/document"
)

// JSONExporter writes documents as a JSON array in extended-JSON form
type JSONExporter struct {
	Pretty bool // Enable pretty-printing (indentation)
}

// NewJSONExporter creates a new JSON exporter
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes documents to the writer
func (e *JSONExporter) Export(writer io.Writer, docs []*document.Document) error {
	buf := []byte{'['}
	for i, doc := range docs {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		if buf, err = appendDocument(buf, doc); err != nil {
			return fmt.Errorf("failed to encode document %d: %w", i, err)
		}
	}
	buf = append(buf, ']', '\n')

	if e.Pretty {
		var out bytes.Buffer
		if err := json.Indent(&out, buf, "", "  "); err != nil {
			return fmt.Errorf("failed to indent JSON: %w", err)
		}
		buf = out.Bytes()
	}
	if _, err := writer.Write(buf); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// JSONImporter reads documents from a JSON array, or from a stream of
// concatenated documents as written by mongoexport
type JSONImporter struct {
	// HexObjectIDs turns 24-character hex strings stored in _id into
	// ObjectIDs, for fixtures that were exported without $oid wrappers
	HexObjectIDs bool
}

// NewJSONImporter creates a new JSON importer
func NewJSONImporter() *JSONImporter {
	return &JSONImporter{}
}

// Import reads every document from the reader
func (i *JSONImporter) Import(reader io.Reader) ([]*document.Document, error) {
	r := newReader(reader)
	tok, err := r.dec.Token()
	if errors.Is(err, io.EOF) {
		return []*document.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var docs []*document.Document
	add := func(v document.Value) error {
		doc, ok := v.Document()
		if !ok {
			return fmt.Errorf("document %d: expected a document, got %s", len(docs), v.Type)
		}
		i.fixID(doc)
		docs = append(docs, doc)
		return nil
	}

	switch tok {
	case json.Delim('['):
		for r.dec.More() {
			v, err := r.value()
			if err != nil {
				return nil, fmt.Errorf("failed to decode document %d: %w", len(docs), err)
			}
			if err := add(v); err != nil {
				return nil, err
			}
		}
		if _, err := r.dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to decode JSON: %w", err)
		}
	case json.Delim('{'):
		for {
			v, err := r.object()
			if err != nil {
				return nil, fmt.Errorf("failed to decode document %d: %w", len(docs), err)
			}
			if err := add(v); err != nil {
				return nil, err
			}
			tok, err = r.dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode JSON: %w", err)
			}
			if tok != json.Delim('{') {
				return nil, fmt.Errorf("failed to decode JSON: unexpected %v between documents", tok)
			}
		}
	default:
		return nil, fmt.Errorf("failed to decode JSON: expected an array or a document, got %v", tok)
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	return docs, nil
}

func (i *JSONImporter) fixID(doc *document.Document) {
	if !i.HexObjectIDs {
		return
	}
	id, ok := doc.ID()
	if !ok {
		return
	}
	if s, ok := id.StringValue(); ok && isHexObjectID(s) {
		if oid, err := document.ObjectIDFromHex(s); err == nil {
			doc.Set(document.IDField, oid)
		}
	}
}

// reader decodes extended JSON token by token so that field order is kept
type reader struct {
	dec *json.Decoder
}

func newReader(r io.Reader) *reader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &reader{dec: dec}
}

func (r *reader) value() (document.Value, error) {
	tok, err := r.dec.Token()
	if err != nil {
		return document.Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return r.object()
		case '[':
			return r.array()
		}
		return document.Value{}, fmt.Errorf("unexpected %q", rune(t))
	case string:
		return document.String(t), nil
	case json.Number:
		// the token aliases the decoder's buffer
		return number(strings.Clone(string(t)))
	case bool:
		return document.Bool(t), nil
	case nil:
		return document.Null(), nil
	}
	return document.Value{}, fmt.Errorf("unexpected token %v", tok)
}

// object reads the members of an object whose '{' was consumed
func (r *reader) object() (document.Value, error) {
	doc := document.NewDocument()
	for r.dec.More() {
		tok, err := r.dec.Token()
		if err != nil {
			return document.Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return document.Value{}, fmt.Errorf("expected a field name, got %v", tok)
		}
		v, err := r.value()
		if err != nil {
			return document.Value{}, fmt.Errorf("field %s: %w", key, err)
		}
		doc.Set(key, v)
	}
	if _, err := r.dec.Token(); err != nil {
		return document.Value{}, err
	}
	return extended(doc)
}

// array reads the elements of an array whose '[' was consumed
func (r *reader) array() (document.Value, error) {
	items := []document.Value{}
	for r.dec.More() {
		v, err := r.value()
		if err != nil {
			return document.Value{}, err
		}
		items = append(items, v)
	}
	if _, err := r.dec.Token(); err != nil {
		return document.Value{}, err
	}
	return document.Array(items...), nil
}
