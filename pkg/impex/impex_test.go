package impex

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/database"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/index"
)

type D = document.D
type A = document.A

func TestRoundTripKeepsKindsAndOrder(t *testing.T) {
	oid := document.NewObjectID()
	when := time.Date(2023, 5, 17, 8, 30, 0, 123000000, time.UTC)
	doc := D{
		{Key: "_id", Value: oid},
		{Key: "small", Value: int32(7)},
		{Key: "big", Value: int64(7)},
		{Key: "ratio", Value: 2.0},
		{Key: "name", Value: "café \"quoted\""},
		{Key: "ok", Value: true},
		{Key: "none", Value: nil},
		{Key: "when", Value: when},
		{Key: "re", Value: document.Regex{Pattern: "^a.*", Options: "i"}},
		{Key: "blob", Value: []byte{0, 1, 2, 255}},
		{Key: "ref", Value: document.DBRef{Collection: "users", ID: document.Int32(3)}},
		{Key: "lo", Value: document.MinKey{}},
		{Key: "hi", Value: document.MaxKey{}},
		{Key: "nested", Value: D{{Key: "z", Value: int32(1)}, {Key: "a", Value: A{int32(1), "x", D{{Key: "k", Value: 1.5}}}}}},
	}.Document()

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	got, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Keys(), got.Keys())
	for _, key := range doc.Keys() {
		want, _ := doc.Get(key)
		have, _ := got.Get(key)
		assert.Equal(t, want.Type, have.Type, key)
		assert.True(t, compare.Equal(want, have), "%s: want %s, got %s", key, want, have)
	}
	nested, _ := got.Get("nested")
	nd, _ := nested.Document()
	assert.Equal(t, []string{"z", "a"}, nd.Keys())
}

func TestMarshalNumbers(t *testing.T) {
	tests := []struct {
		value interface{}
		want  string
	}{
		{int32(-3), `{"v":-3}`},
		{int64(1) << 40, `{"v":{"$numberLong":"1099511627776"}}`},
		{1.0, `{"v":1.0}`},
		{0.25, `{"v":0.25}`},
		{1e300, `{"v":1e+300}`},
		{math.Inf(-1), `{"v":{"$numberDouble":"-Infinity"}}`},
	}
	for _, tt := range tests {
		data, err := MarshalDocument(D{{Key: "v", Value: tt.value}}.Document())
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data))
	}
}

func TestUnmarshalNumbers(t *testing.T) {
	doc, err := UnmarshalDocument([]byte(`{"a":1,"b":3000000000,"c":1.5,"d":2e3,"e":{"$numberInt":"9"},"f":{"$numberDouble":"NaN"}}`))
	require.NoError(t, err)

	kinds := map[string]document.Type{
		"a": document.TypeInt32,
		"b": document.TypeInt64,
		"c": document.TypeFloat64,
		"d": document.TypeFloat64,
		"e": document.TypeInt32,
		"f": document.TypeFloat64,
	}
	for key, kind := range kinds {
		v, ok := doc.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, kind, v.Type, key)
	}
	f, _ := doc.Get("f")
	n, _ := f.Float64Value()
	assert.True(t, math.IsNaN(n))
}

func TestUnmarshalAlternateForms(t *testing.T) {
	doc, err := UnmarshalDocument([]byte(`{
		"ms": {"$date": {"$numberLong": "1000"}},
		"re": {"$regularExpression": {"pattern": "x", "options": "m"}},
		"bin": {"$binary": "AAE=", "$type": "00"},
		"plain": {"$regex": "x", "other": 1},
		"op": {"$gt": 1}
	}`))
	require.NoError(t, err)

	ms, _ := doc.Get("ms")
	at, ok := ms.Time()
	require.True(t, ok)
	assert.Equal(t, int64(1000), at.UnixMilli())

	re, _ := doc.Get("re")
	r, ok := re.Regex()
	require.True(t, ok)
	assert.Equal(t, document.Regex{Pattern: "x", Options: "m"}, r)

	bin, _ := doc.Get("bin")
	assert.Equal(t, []byte{0, 1}, bin.Data)

	plain, _ := doc.Get("plain")
	assert.Equal(t, document.TypeDocument, plain.Type)
	op, _ := doc.Get("op")
	assert.Equal(t, document.TypeDocument, op.Type)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, input := range []string{
		`[1]`,
		`{"a":`,
		`{"_id":{"$oid":"xyz"}}`,
		`{"n":{"$numberLong":"1.5"}}`,
		`{"d":{"$date":"yesterday"}}`,
		`{"a":1,}`,
	} {
		_, err := UnmarshalDocument([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestImporterStreams(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		docs, err := NewJSONImporter().Import(strings.NewReader(`[{"_id":1},{"_id":2}]`))
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("concatenated documents", func(t *testing.T) {
		docs, err := NewJSONImporter().Import(strings.NewReader("{\"_id\":1}\n{\"_id\":2}\n{\"_id\":3}\n"))
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("empty", func(t *testing.T) {
		docs, err := NewJSONImporter().Import(strings.NewReader("  "))
		require.NoError(t, err)
		assert.Empty(t, docs)

		docs, err = NewJSONImporter().Import(strings.NewReader("[]"))
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("non-document element", func(t *testing.T) {
		_, err := NewJSONImporter().Import(strings.NewReader(`[{"_id":1}, 2]`))
		assert.Error(t, err)
	})

	t.Run("hex object ids", func(t *testing.T) {
		importer := &JSONImporter{HexObjectIDs: true}
		docs, err := importer.Import(strings.NewReader(`[{"_id":"507f1f77bcf86cd799439011","ref":"507f1f77bcf86cd799439011"}]`))
		require.NoError(t, err)
		id, _ := docs[0].ID()
		assert.Equal(t, document.TypeObjectID, id.Type)
		ref, _ := docs[0].Get("ref")
		assert.Equal(t, document.TypeString, ref.Type)
	})
}

func TestExporterPretty(t *testing.T) {
	var buf bytes.Buffer
	docs := []*document.Document{D{{Key: "_id", Value: int32(1)}, {Key: "tags", Value: A{"a"}}}.Document()}
	require.NoError(t, NewJSONExporter(true).Export(&buf, docs))
	assert.Contains(t, buf.String(), "\n  {\n    \"_id\": 1,")

	buf.Reset()
	require.NoError(t, NewJSONExporter(false).Export(&buf, docs))
	assert.Equal(t, "[{\"_id\":1,\"tags\":[\"a\"]}]\n", buf.String())
}

func newCollection(t *testing.T, name string) *database.Collection {
	t.Helper()
	db, err := database.Open(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.Collection(name)
}

func TestCollectionRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionSnappy, CompressionGzip} {
		t.Run(compression.String(), func(t *testing.T) {
			src := newCollection(t, "src")
			for i := range 20 {
				_, err := src.InsertOne(D{{Key: "_id", Value: i}, {Key: "even", Value: i%2 == 0}, {Key: "at", Value: time.Unix(int64(i), 0).UTC()}}.Document())
				require.NoError(t, err)
			}

			var buf bytes.Buffer
			n, err := ExportJSON(src, &buf, &Options{
				Compression: compression,
				Level:       5,
				Filter:      D{{Key: "even", Value: true}}.Document(),
			})
			require.NoError(t, err)
			assert.Equal(t, 10, n)

			dst := newCollection(t, "dst")
			n, err = ImportJSON(dst, &buf, &Options{Compression: compression})
			require.NoError(t, err)
			assert.Equal(t, 10, n)

			want, err := src.Find(D{{Key: "even", Value: true}}.Document())
			require.NoError(t, err)
			got, err := dst.Find(nil)
			require.NoError(t, err)
			require.Len(t, got, len(want))
			for i := range want {
				assert.Zero(t, compare.Documents(want[i], got[i]), "document %d", i)
			}
		})
	}
}

func TestImportStopsAtFirstRejectedDocument(t *testing.T) {
	coll := newCollection(t, "fixtures")
	n, err := ImportJSON(coll, strings.NewReader(`[{"_id":1},{"_id":2},{"_id":1},{"_id":3}]`), nil)
	var dup *index.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 2, n)

	count, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUnsupportedCompression(t *testing.T) {
	coll := newCollection(t, "c")
	_, err := ExportJSON(coll, &bytes.Buffer{}, &Options{Compression: "lz4"})
	assert.Error(t, err)
	_, err = ImportJSON(coll, strings.NewReader("[]"), &Options{Compression: "lz4"})
	assert.Error(t, err)
}

func TestCompressionFromPath(t *testing.T) {
	tests := map[string]Compression{
		"users.json.zst":    CompressionZstd,
		"users.json.snappy": CompressionSnappy,
		"users.json.gz":     CompressionGzip,
		"users.json":        CompressionNone,
	}
	for path, want := range tests {
		assert.Equal(t, want, CompressionFromPath(path), path)
	}
}
