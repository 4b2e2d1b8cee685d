package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valuesOf(vals []Value) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v.Interface()
	}
	return out
}

func TestResolveNestedDocuments(t *testing.T) {
	doc := D{{Key: "user", Value: D{{Key: "address", Value: D{{Key: "city", Value: "Oslo"}}}}}}.Document()
	assert.Equal(t, []interface{}{"Oslo"}, valuesOf(doc.Resolve("user.address.city")))
	assert.Empty(t, doc.Resolve("user.phone"))
	assert.Empty(t, doc.Resolve("user.address.city.zip"))
}

func TestResolveFansOutOverArrays(t *testing.T) {
	doc := D{{Key: "arr", Value: A{
		D{{Key: "x", Value: 1}},
		D{{Key: "x", Value: 2}},
		"scalar",
		D{{Key: "y", Value: 3}},
	}}}.Document()

	assert.Equal(t, []interface{}{int64(1), int64(2)}, valuesOf(doc.Resolve("arr.x")))
	assert.Equal(t, []interface{}{int64(2)}, valuesOf(doc.Resolve("arr.1.x")))
	assert.Equal(t, []interface{}{"scalar"}, valuesOf(doc.Resolve("arr.2")))
	assert.Empty(t, doc.Resolve("arr.9"))
}

func TestResolveDBRefPseudoFields(t *testing.T) {
	ref := DBRef{Collection: "users", ID: Int32(7), DB: "app"}
	doc := D{{Key: "owner", Value: ref}, {Key: "refs", Value: A{ref}}}.Document()

	assert.Equal(t, []interface{}{"users"}, valuesOf(doc.Resolve("owner.$ref")))
	assert.Equal(t, []interface{}{int32(7)}, valuesOf(doc.Resolve("owner.$id")))
	assert.Equal(t, []interface{}{"app"}, valuesOf(doc.Resolve("refs.$db")))
}

func TestLookupDoesNotFanOut(t *testing.T) {
	doc := D{{Key: "arr", Value: A{D{{Key: "x", Value: 1}}}}}.Document()
	_, ok := doc.Lookup("arr.x")
	assert.False(t, ok)

	v, ok := doc.Lookup("arr.0.x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Data)
}

func TestSetPathCreatesIntermediateDocuments(t *testing.T) {
	doc := NewDocument()
	doc.SetPath("a.b.c", 1)
	v, ok := doc.Lookup("a.b.c")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Data)
}

func TestProjectKeepsNestingAndResolution(t *testing.T) {
	doc := D{
		{Key: "_id", Value: 1},
		{Key: "a", Value: D{{Key: "b", Value: 1}, {Key: "c", Value: 2}}},
		{Key: "arr", Value: A{D{{Key: "x", Value: 1}, {Key: "y", Value: 5}}, 7, D{{Key: "x", Value: 2}}}},
		{Key: "other", Value: "drop"},
	}.Document()

	paths := []string{"a.b", "arr.x", "arr.y"}
	key := Project(doc, paths)

	assert.False(t, key.Has("other"))
	assert.False(t, key.Has("_id"))
	for _, p := range paths {
		assert.Equal(t, valuesOf(doc.Resolve(p)), valuesOf(key.Resolve(p)), "path %s", p)
	}
	_, ok := key.Lookup("a.c")
	assert.False(t, ok)
}

func TestProjectPrefixPathCoversLongerPath(t *testing.T) {
	doc := D{{Key: "a", Value: D{{Key: "b", Value: 1}, {Key: "c", Value: 2}}}}.Document()
	key := Project(doc, []string{"a.b", "a"})
	c, ok := key.Lookup("a.c")
	require.True(t, ok)
	assert.Equal(t, int64(2), c.Data)
}

func TestProjectMissingFieldsYieldEmptyDocument(t *testing.T) {
	doc := D{{Key: "a", Value: 1}}.Document()
	assert.Equal(t, 0, Project(doc, []string{"b", "c.d"}).Len())
}

func TestArrayIndex(t *testing.T) {
	i, ok := ArrayIndex("12")
	assert.True(t, ok)
	assert.Equal(t, 12, i)
	_, ok = ArrayIndex("-1")
	assert.False(t, ok)
	_, ok = ArrayIndex("$")
	assert.False(t, ok)
	_, ok = ArrayIndex("")
	assert.False(t, ok)
}
