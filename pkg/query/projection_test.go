package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjection(t *testing.T) {
	source := D{
		{Key: "_id", Value: 7},
		{Key: "name", Value: "Alice"},
		{Key: "address", Value: D{{Key: "city", Value: "NYC"}, {Key: "zip", Value: "10001"}}},
		{Key: "tags", Value: A{D{{Key: "k", Value: 1}, {Key: "v", Value: 2}}}},
	}

	tests := []struct {
		name string
		spec D
		keys []string
	}{
		{"inclusion keeps _id first", D{{Key: "name", Value: 1}}, []string{"_id", "name"}},
		{"inclusion without _id", D{{Key: "name", Value: 1}, {Key: "_id", Value: 0}}, []string{"name"}},
		{"exclusion", D{{Key: "name", Value: 0}, {Key: "tags", Value: 0}}, []string{"_id", "address"}},
		{"exclude only _id", D{{Key: "_id", Value: 0}}, []string{"name", "address", "tags"}},
		{"include only _id", D{{Key: "_id", Value: 1}}, []string{"_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProjection(tt.spec.Document())
			require.NoError(t, err)
			assert.Equal(t, tt.keys, p.Apply(source.Document()).Keys())
		})
	}
}

func TestProjectionNestedPaths(t *testing.T) {
	doc := D{
		{Key: "_id", Value: 1},
		{Key: "address", Value: D{{Key: "city", Value: "NYC"}, {Key: "zip", Value: "10001"}}},
		{Key: "tags", Value: A{D{{Key: "k", Value: 1}, {Key: "v", Value: 2}}}},
	}.Document()

	p, err := ParseProjection(D{{Key: "address.city", Value: 1}}.Document())
	require.NoError(t, err)
	out := p.Apply(doc)
	city, ok := out.Lookup("address.city")
	require.True(t, ok)
	assert.Equal(t, "NYC", city.Data)
	_, ok = out.Lookup("address.zip")
	assert.False(t, ok)

	p, err = ParseProjection(D{{Key: "tags.v", Value: 0}}.Document())
	require.NoError(t, err)
	out = p.Apply(doc)
	_, ok = out.Lookup("tags.0.v")
	assert.False(t, ok)
	_, ok = out.Lookup("tags.0.k")
	assert.True(t, ok)
	_, ok = doc.Lookup("tags.0.v")
	assert.True(t, ok, "source is untouched")
}

func TestProjectionErrors(t *testing.T) {
	_, err := ParseProjection(D{{Key: "a", Value: 1}, {Key: "b", Value: 0}}.Document())
	assert.Error(t, err)

	p, err := ParseProjection(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	doc := D{{Key: "a", Value: 1}}.Document()
	assert.Same(t, doc, p.Apply(doc))
}
