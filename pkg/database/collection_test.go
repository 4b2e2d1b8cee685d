package database

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjyun/fongo-sub000/pkg/compare"
	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/index"
	"github.com/sjyun/fongo-sub000/pkg/query"
	"github.com/sjyun/fongo-sub000/pkg/update"
)

func newCollectionForTest(t *testing.T, docs ...D) *Collection {
	t.Helper()
	coll := openDB(t, nil).Collection("test")
	insert(t, coll, docs...)
	return coll
}

func findOne(t *testing.T, coll *Collection, filter D) *document.Document {
	t.Helper()
	doc, err := coll.FindOne(filter.Document())
	require.NoError(t, err)
	return doc
}

func field(t *testing.T, doc *document.Document, path string) document.Value {
	t.Helper()
	v, ok := doc.Lookup(path)
	require.True(t, ok, "missing %s in %s", path, doc)
	return v
}

func assertValue(t *testing.T, want interface{}, got document.Value) {
	t.Helper()
	assert.True(t, compare.Equal(document.NewValue(want), got), "want %v, got %s", want, got)
}

func TestScenarioSortedFind(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "a", Value: 2}},
		D{{Key: "_id", Value: 2}, {Key: "a", Value: 2}},
		D{{Key: "_id", Value: 3}, {Key: "a", Value: 1}},
	)

	docs, err := coll.Find(D{{Key: "a", Value: D{{Key: "$gte", Value: 2}}}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(t, docs))

	docs, err = coll.FindWithOptions(nil, &QueryOptions{Sort: D{{Key: "a", Value: 1}}.Document()})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, ids(t, docs))
}

func TestScenarioUniqueIndex(t *testing.T) {
	coll := newCollectionForTest(t)
	_, err := coll.CreateIndex(D{{Key: "email", Value: 1}}.Document(), &IndexOptions{Unique: true})
	require.NoError(t, err)

	_, err = coll.InsertOne(D{{Key: "email", Value: "x"}}.Document())
	require.NoError(t, err)
	_, err = coll.InsertOne(D{{Key: "email", Value: "x"}}.Document())

	var dup *index.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "email_1", dup.Index)

	n, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScenarioPushEachSlice(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}, {Key: "tags", Value: A{"z"}}})

	res, err := coll.UpdateOne(
		D{{Key: "_id", Value: 1}}.Document(),
		D{{Key: "$push", Value: D{{Key: "tags", Value: D{{Key: "$each", Value: A{"a", "b"}}, {Key: "$slice", Value: -2}}}}}}.Document(),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Modified)
	assertValue(t, A{"a", "b"}, field(t, findOne(t, coll, D{{Key: "_id", Value: 1}}), "tags"))
}

func TestScenarioArrayFanOut(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "arr", Value: A{D{{Key: "x", Value: 1}}, D{{Key: "x", Value: 2}}}}},
		D{{Key: "_id", Value: 2}, {Key: "arr", Value: A{D{{Key: "x", Value: 3}}}}},
	)
	docs, err := coll.Find(D{{Key: "arr.x", Value: 2}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(t, docs))
}

func TestInsertAssignsIDFirst(t *testing.T) {
	coll := newCollectionForTest(t)
	in := D{{Key: "name", Value: "alice"}}.Document()

	id, err := coll.InsertOne(in)
	require.NoError(t, err)
	assert.False(t, in.Has("_id"), "input document must not be modified")

	doc := findOne(t, coll, D{{Key: "_id", Value: id}})
	assert.Equal(t, []string{"_id", "name"}, doc.Keys())

	// an explicit _id is moved to the front too
	_, err = coll.InsertOne(D{{Key: "name", Value: "bob"}, {Key: "_id", Value: 7}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "name"}, findOne(t, coll, D{{Key: "_id", Value: 7}}).Keys())
}

func TestInsertRejectsInvalidID(t *testing.T) {
	coll := newCollectionForTest(t)
	_, err := coll.InsertOne(D{{Key: "_id", Value: A{1, 2}}}.Document())
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = coll.InsertOne(D{{Key: "_id", Value: document.Regex{Pattern: "^a"}}}.Document())
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestInsertManyStopsAtFirstFailure(t *testing.T) {
	coll := newCollectionForTest(t)
	got, err := coll.InsertMany([]*document.Document{
		D{{Key: "_id", Value: 1}}.Document(),
		D{{Key: "_id", Value: 1}}.Document(),
		D{{Key: "_id", Value: 2}}.Document(),
	})
	var dup *index.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Contains(t, err.Error(), "insert document 1")
	assert.Len(t, got, 1)

	n, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDocuments = 2
	coll := openDB(t, cfg).Collection("capped")
	insert(t, coll, D{{Key: "_id", Value: 1}}, D{{Key: "_id", Value: 2}})

	_, err := coll.InsertOne(D{{Key: "_id", Value: 3}}.Document())
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Limit)

	// removing makes room again
	require.NoError(t, coll.DeleteOne(D{{Key: "_id", Value: 1}}.Document()))
	_, err = coll.InsertOne(D{{Key: "_id", Value: 3}}.Document())
	assert.NoError(t, err)
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}})

	doc := findOne(t, coll, D{{Key: "_id", Value: 1}})
	doc.Set("a", 99)

	assertValue(t, 1, field(t, findOne(t, coll, D{{Key: "_id", Value: 1}}), "a"))
}

func TestFindWithOptions(t *testing.T) {
	coll := newCollectionForTest(t)
	for i := 1; i <= 5; i++ {
		insert(t, coll, D{{Key: "_id", Value: i}, {Key: "n", Value: i * 10}, {Key: "tag", Value: "x"}})
	}

	docs, err := coll.FindWithOptions(nil, &QueryOptions{
		Sort:       D{{Key: "n", Value: -1}}.Document(),
		Skip:       1,
		Limit:      2,
		Projection: D{{Key: "n", Value: 1}}.Document(),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, ids(t, docs))
	assert.Equal(t, []string{"_id", "n"}, docs[0].Keys())

	_, err = coll.FindWithOptions(nil, &QueryOptions{Sort: D{{Key: "n", Value: "up"}}.Document()})
	var sortErr *compare.SortSpecError
	assert.ErrorAs(t, err, &sortErr)

	_, err = coll.FindWithOptions(nil, &QueryOptions{Limit: -1})
	assert.Error(t, err)
}

func TestFindOneNotFound(t *testing.T) {
	coll := newCollectionForTest(t)
	_, err := coll.FindOne(D{{Key: "_id", Value: 1}}.Document())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestFindCompilationError(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}})
	_, err := coll.Find(D{{Key: "a", Value: D{{Key: "$in", Value: 5}}}}.Document())
	var compileErr *query.CompilationError
	assert.ErrorAs(t, err, &compileErr)
}

func TestWhereUsesCEL(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "age", Value: 12}},
		D{{Key: "_id", Value: 2}, {Key: "age", Value: 30}},
	)
	docs, err := coll.Find(D{{Key: "$where", Value: "this.age >= 18"}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(t, docs))

	_, err = coll.Find(D{{Key: "$where", Value: "this.age +"}}.Document())
	assert.Error(t, err)
}

func TestParallelFind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParallelThreshold = 10
	cfg.MaxWorkers = 4
	coll := openDB(t, cfg).Collection("big")
	docs := make([]*document.Document, 0, 500)
	for i := range 500 {
		docs = append(docs, D{{Key: "_id", Value: i}, {Key: "n", Value: i % 50}}.Document())
	}
	_, err := coll.InsertMany(docs)
	require.NoError(t, err)

	got, err := coll.Find(D{{Key: "n", Value: 7}}.Document())
	require.NoError(t, err)
	want := make([]int64, 0, 10)
	for i := 7; i < 500; i += 50 {
		want = append(want, int64(i))
	}
	assert.Equal(t, want, ids(t, got))
}

func TestCount(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}},
		D{{Key: "_id", Value: 2}, {Key: "a", Value: 2}},
		D{{Key: "_id", Value: 3}},
	)
	n, err := coll.Count(D{{Key: "a", Value: D{{Key: "$exists", Value: true}}}}.Document())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = coll.Count(D{{Key: "a", Value: nil}}.Document())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDistinct(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "tags", Value: A{"a", "b"}}, {Key: "n", Value: 1}},
		D{{Key: "_id", Value: 2}, {Key: "tags", Value: A{"b", "c"}}, {Key: "n", Value: int32(1)}},
		D{{Key: "_id", Value: 3}, {Key: "tags", Value: "a"}, {Key: "n", Value: 1.0}},
		D{{Key: "_id", Value: 4}, {Key: "n", Value: 2}},
	)

	tags, err := coll.Distinct("tags", nil)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	for i, want := range []string{"a", "b", "c"} {
		assertValue(t, want, tags[i])
	}

	nums, err := coll.Distinct("n", nil)
	require.NoError(t, err)
	assert.Len(t, nums, 2)

	nums, err = coll.Distinct("n", D{{Key: "_id", Value: D{{Key: "$gt", Value: 3}}}}.Document())
	require.NoError(t, err)
	require.Len(t, nums, 1)
	assertValue(t, 2, nums[0])
}

func TestUpdate(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "group", Value: "a"}, {Key: "n", Value: 1}},
		D{{Key: "_id", Value: 2}, {Key: "group", Value: "a"}, {Key: "n", Value: 2}},
		D{{Key: "_id", Value: 3}, {Key: "group", Value: "b"}, {Key: "n", Value: 3}},
	)
	inc := D{{Key: "$inc", Value: D{{Key: "n", Value: 10}}}}.Document()

	res, err := coll.UpdateOne(D{{Key: "group", Value: "a"}}.Document(), inc)
	require.NoError(t, err)
	assert.Equal(t, &UpdateResult{Matched: 1, Modified: 1}, res)
	assertValue(t, 11, field(t, findOne(t, coll, D{{Key: "_id", Value: 1}}), "n"))
	assertValue(t, 2, field(t, findOne(t, coll, D{{Key: "_id", Value: 2}}), "n"))

	res, err = coll.UpdateMany(D{{Key: "group", Value: "a"}}.Document(), inc)
	require.NoError(t, err)
	assert.Equal(t, &UpdateResult{Matched: 2, Modified: 2}, res)

	res, err = coll.UpdateMany(D{{Key: "group", Value: "zzz"}}.Document(), inc)
	require.NoError(t, err)
	assert.Equal(t, &UpdateResult{}, res)
}

func TestUpdateNoop(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}})

	res, err := coll.UpdateOne(D{{Key: "_id", Value: 1}}.Document(), D{{Key: "$set", Value: D{{Key: "a", Value: 1}}}}.Document())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0, res.Modified)

	// same number, different kind
	res, err = coll.UpdateOne(D{{Key: "_id", Value: 1}}.Document(), D{{Key: "$set", Value: D{{Key: "a", Value: 1.0}}}}.Document())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Modified)
	assert.Equal(t, document.TypeFloat64, field(t, findOne(t, coll, D{{Key: "_id", Value: 1}}), "a").Type)
}

func TestUpdateErrors(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}, {Key: "s", Value: "x"}})
	byID := D{{Key: "_id", Value: 1}}.Document()

	_, err := coll.UpdateOne(byID, D{{Key: "$inc", Value: D{{Key: "s", Value: 1}}}}.Document())
	var typeErr *update.TypeError
	assert.ErrorAs(t, err, &typeErr)

	_, err = coll.UpdateOne(byID, D{{Key: "$set", Value: D{{Key: "_id", Value: 2}}}}.Document())
	assert.ErrorAs(t, err, &typeErr)

	_, err = coll.UpdateOne(byID, D{{Key: "$set", Value: D{{Key: "a", Value: 1}}}, {Key: "$unset", Value: D{{Key: "a", Value: ""}}}}.Document())
	var conflict *update.ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = coll.UpdateOne(byID, D{{Key: "$frobnicate", Value: D{{Key: "a", Value: 1}}}}.Document())
	var unsupported *update.UnsupportedOperatorError
	assert.ErrorAs(t, err, &unsupported)

	_, err = coll.Update(byID, D{{Key: "x", Value: 1}}.Document(), false, true)
	assert.ErrorIs(t, err, ErrMultiReplacement)

	// the stored document is untouched
	doc := findOne(t, coll, D{{Key: "_id", Value: 1}})
	assert.Equal(t, []string{"_id", "s"}, doc.Keys())
}

func TestUpsert(t *testing.T) {
	coll := newCollectionForTest(t)

	res, err := coll.Update(
		D{{Key: "name", Value: "alice"}, {Key: "profile.city", Value: "Oslo"}, {Key: "age", Value: D{{Key: "$gt", Value: 18}}}}.Document(),
		D{{Key: "$set", Value: D{{Key: "active", Value: true}}}, {Key: "$setOnInsert", Value: D{{Key: "visits", Value: 0}}}}.Document(),
		true, false,
	)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
	require.NotNil(t, res.UpsertedID)

	doc := findOne(t, coll, D{{Key: "_id", Value: *res.UpsertedID}})
	assert.Equal(t, "_id", doc.Keys()[0])
	assertValue(t, "alice", field(t, doc, "name"))
	assertValue(t, "Oslo", field(t, doc, "profile.city"))
	assertValue(t, true, field(t, doc, "active"))
	assertValue(t, 0, field(t, doc, "visits"))
	assert.False(t, doc.Has("age"))

	// the second run matches the upserted document
	res, err = coll.Update(
		D{{Key: "name", Value: "alice"}}.Document(),
		D{{Key: "$set", Value: D{{Key: "active", Value: false}}}, {Key: "$setOnInsert", Value: D{{Key: "visits", Value: 5}}}}.Document(),
		true, false,
	)
	require.NoError(t, err)
	assert.Nil(t, res.UpsertedID)
	assert.Equal(t, 1, res.Modified)
	assertValue(t, 0, field(t, findOne(t, coll, D{{Key: "name", Value: "alice"}}), "visits"))
}

func TestUpsertWithID(t *testing.T) {
	coll := newCollectionForTest(t)
	res, err := coll.Update(
		D{{Key: "_id", Value: 42}}.Document(),
		D{{Key: "$inc", Value: D{{Key: "n", Value: 1}}}}.Document(),
		true, false,
	)
	require.NoError(t, err)
	require.NotNil(t, res.UpsertedID)
	assertValue(t, 42, *res.UpsertedID)
	assertValue(t, 1, field(t, findOne(t, coll, D{{Key: "_id", Value: 42}}), "n"))
}

func TestCurrentDateUsesClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	coll := openDB(t, nil, WithClock(func() time.Time { return now })).Collection("c")
	insert(t, coll, D{{Key: "_id", Value: 1}})

	_, err := coll.UpdateOne(D{{Key: "_id", Value: 1}}.Document(), D{{Key: "$currentDate", Value: D{{Key: "at", Value: true}}}}.Document())
	require.NoError(t, err)

	at, ok := field(t, findOne(t, coll, D{{Key: "_id", Value: 1}}), "at").Time()
	require.True(t, ok)
	assert.True(t, now.Equal(at))
}

func TestReplaceOne(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}, {Key: "b", Value: 2}})

	res, err := coll.ReplaceOne(D{{Key: "a", Value: 1}}.Document(), D{{Key: "c", Value: 3}}.Document(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Modified)

	doc := findOne(t, coll, D{{Key: "_id", Value: 1}})
	assert.Equal(t, []string{"_id", "c"}, doc.Keys())

	_, err = coll.ReplaceOne(D{{Key: "_id", Value: 1}}.Document(), D{{Key: "$set", Value: D{{Key: "c", Value: 4}}}}.Document(), false)
	assert.ErrorIs(t, err, ErrInvalidReplacement)

	res, err = coll.ReplaceOne(D{{Key: "_id", Value: 2}}.Document(), D{{Key: "c", Value: 5}}.Document(), true)
	require.NoError(t, err)
	require.NotNil(t, res.UpsertedID)
	assertValue(t, 2, *res.UpsertedID)
	assertValue(t, 5, field(t, findOne(t, coll, D{{Key: "_id", Value: 2}}), "c"))
}

func TestFindAndModify(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "n", Value: 1}},
		D{{Key: "_id", Value: 2}, {Key: "n", Value: 5}},
		D{{Key: "_id", Value: 3}, {Key: "n", Value: 3}},
	)
	inc := D{{Key: "$inc", Value: D{{Key: "n", Value: 1}}}}.Document()
	byN := D{{Key: "n", Value: -1}}.Document()

	t.Run("returns the old document by default", func(t *testing.T) {
		doc, err := coll.FindAndModify(nil, &FindAndModifyOptions{Sort: byN, Update: inc})
		require.NoError(t, err)
		assertValue(t, 2, field(t, doc, "_id"))
		assertValue(t, 5, field(t, doc, "n"))
	})

	t.Run("returns the new document", func(t *testing.T) {
		doc, err := coll.FindAndModify(nil, &FindAndModifyOptions{
			Sort:       byN,
			Update:     inc,
			ReturnNew:  true,
			Projection: D{{Key: "_id", Value: 0}}.Document(),
		})
		require.NoError(t, err)
		assert.False(t, doc.Has("_id"))
		assertValue(t, 7, field(t, doc, "n"))
	})

	t.Run("removes", func(t *testing.T) {
		doc, err := coll.FindAndModify(D{{Key: "_id", Value: 1}}.Document(), &FindAndModifyOptions{Remove: true})
		require.NoError(t, err)
		assertValue(t, 1, field(t, doc, "_id"))
		_, err = coll.FindOne(D{{Key: "_id", Value: 1}}.Document())
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := coll.FindAndModify(D{{Key: "_id", Value: 9}}.Document(), &FindAndModifyOptions{Update: inc})
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("upsert", func(t *testing.T) {
		doc, err := coll.FindAndModify(D{{Key: "_id", Value: 9}}.Document(), &FindAndModifyOptions{Update: inc, Upsert: true, ReturnNew: true})
		require.NoError(t, err)
		assertValue(t, 9, field(t, doc, "_id"))
		assertValue(t, 1, field(t, doc, "n"))

		doc, err = coll.FindAndModify(D{{Key: "_id", Value: 10}}.Document(), &FindAndModifyOptions{Update: inc, Upsert: true})
		require.NoError(t, err)
		assert.Nil(t, doc)
		findOne(t, coll, D{{Key: "_id", Value: 10}})
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := coll.FindAndModify(nil, nil)
		assert.ErrorIs(t, err, ErrInvalidFindAndModify)
		_, err = coll.FindAndModify(nil, &FindAndModifyOptions{Update: inc, Remove: true})
		assert.ErrorIs(t, err, ErrInvalidFindAndModify)
	})
}

func TestDelete(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "kind", Value: "a"}},
		D{{Key: "_id", Value: 2}, {Key: "kind", Value: "a"}},
		D{{Key: "_id", Value: 3}, {Key: "kind", Value: "b"}},
	)

	require.NoError(t, coll.DeleteOne(D{{Key: "kind", Value: "a"}}.Document()))
	docs, err := coll.Find(nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids(t, docs))

	assert.ErrorIs(t, coll.DeleteOne(D{{Key: "kind", Value: "zzz"}}.Document()), ErrDocumentNotFound)

	n, err := coll.DeleteMany(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, coll.Stats().Count)
}

func TestIndexesFollowWrites(t *testing.T) {
	coll := newCollectionForTest(t)
	name, err := coll.CreateIndex(D{{Key: "a", Value: 1}}.Document(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a_1", name)

	insert(t, coll,
		D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}},
		D{{Key: "_id", Value: 2}, {Key: "a", Value: 2}},
	)
	find := func(a int) []int64 {
		docs, err := coll.Find(D{{Key: "a", Value: a}}.Document())
		require.NoError(t, err)
		return ids(t, docs)
	}

	explain, err := coll.Explain(D{{Key: "a", Value: 1}}.Document(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a_1", explain.Index)
	assert.False(t, explain.Scan)
	assert.Equal(t, 1, explain.Candidates)
	assert.Equal(t, 2, explain.Total)

	_, err = coll.UpdateOne(D{{Key: "_id", Value: 1}}.Document(), D{{Key: "$set", Value: D{{Key: "a", Value: 5}}}}.Document())
	require.NoError(t, err)
	assert.Empty(t, find(1))
	assert.Equal(t, []int64{1}, find(5))

	_, err = coll.ReplaceOne(D{{Key: "_id", Value: 2}}.Document(), D{{Key: "a", Value: 5}}.Document(), false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, find(5))

	require.NoError(t, coll.DeleteOne(D{{Key: "_id", Value: 1}}.Document()))
	assert.Equal(t, []int64{2}, find(5))

	infos := coll.ListIndexes()
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[1].Stats.Entries)
	assert.Equal(t, 1, infos[0].Stats.Entries)
}

func TestIndexKeepsNumericKinds(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "a", Value: int32(1)}},
		D{{Key: "_id", Value: 2}, {Key: "a", Value: 1.0}},
	)
	doubles := D{{Key: "a", Value: D{{Key: "$type", Value: "double"}}}}.Document()

	before, err := coll.Find(doubles)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(t, before))

	_, err = coll.CreateIndex(D{{Key: "a", Value: 1}}.Document(), nil)
	require.NoError(t, err)
	explain, err := coll.Explain(doubles, nil)
	require.NoError(t, err)
	require.Equal(t, "a_1", explain.Index)

	after, err := coll.Find(doubles)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(t, after))

	_, err = coll.UpdateOne(D{{Key: "_id", Value: 1}}.Document(), D{{Key: "$set", Value: D{{Key: "a", Value: 1.0}}}}.Document())
	require.NoError(t, err)
	after, err = coll.Find(doubles)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(t, after))
}

func TestUniqueViolationOnUpdateLeavesDocument(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "email", Value: "a"}},
		D{{Key: "_id", Value: 2}, {Key: "email", Value: "b"}},
	)
	_, err := coll.CreateIndex(D{{Key: "email", Value: 1}}.Document(), &IndexOptions{Unique: true})
	require.NoError(t, err)

	_, err = coll.UpdateOne(D{{Key: "_id", Value: 2}}.Document(), D{{Key: "$set", Value: D{{Key: "email", Value: "a"}}}}.Document())
	var dup *index.DuplicateKeyError
	require.ErrorAs(t, err, &dup)

	assertValue(t, "b", field(t, findOne(t, coll, D{{Key: "_id", Value: 2}}), "email"))
	docs, err := coll.Find(D{{Key: "email", Value: "b"}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(t, docs))
}

func TestCreateIndex(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "email", Value: "x"}},
		D{{Key: "_id", Value: 2}, {Key: "email", Value: "x"}},
	)

	t.Run("unique over duplicates fails", func(t *testing.T) {
		_, err := coll.CreateIndex(D{{Key: "email", Value: 1}}.Document(), &IndexOptions{Unique: true})
		var dup *index.DuplicateKeyError
		require.ErrorAs(t, err, &dup)
		assert.Len(t, coll.ListIndexes(), 1)
	})

	t.Run("idempotent", func(t *testing.T) {
		keys := D{{Key: "email", Value: 1}, {Key: "age", Value: -1}}.Document()
		name, err := coll.CreateIndex(keys, nil)
		require.NoError(t, err)
		assert.Equal(t, "email_1_age_-1", name)
		again, err := coll.CreateIndex(keys, nil)
		require.NoError(t, err)
		assert.Equal(t, name, again)
		assert.Len(t, coll.ListIndexes(), 2)
	})

	t.Run("name reused with other keys", func(t *testing.T) {
		_, err := coll.CreateIndex(D{{Key: "other", Value: 1}}.Document(), &IndexOptions{Name: "email_1_age_-1"})
		assert.ErrorIs(t, err, ErrIndexExists)
	})

	t.Run("primary keys", func(t *testing.T) {
		name, err := coll.CreateIndex(D{{Key: "_id", Value: 1}}.Document(), nil)
		require.NoError(t, err)
		assert.Equal(t, "_id_", name)
	})

	t.Run("invalid keys", func(t *testing.T) {
		_, err := coll.CreateIndex(D{{Key: "a", Value: "text"}}.Document(), nil)
		assert.ErrorIs(t, err, index.ErrInvalidKeySpec)
	})
}

func TestDropIndex(t *testing.T) {
	coll := newCollectionForTest(t, D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}})
	_, err := coll.CreateIndex(D{{Key: "a", Value: 1}}.Document(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, coll.DropIndex("_id_"), ErrPrimaryIndex)
	assert.ErrorIs(t, coll.DropIndex("nope"), ErrIndexNotFound)
	require.NoError(t, coll.DropIndex("a_1"))
	assert.Len(t, coll.ListIndexes(), 1)

	explain, err := coll.Explain(D{{Key: "a", Value: 1}}.Document(), nil)
	require.NoError(t, err)
	assert.True(t, explain.Scan)
	assert.Equal(t, 1, explain.Matched)
}

func TestSparseIndexNotUsedForMissingFields(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}},
		D{{Key: "_id", Value: 2}},
	)
	_, err := coll.CreateIndex(D{{Key: "a", Value: 1}}.Document(), &IndexOptions{Sparse: true})
	require.NoError(t, err)

	docs, err := coll.Find(D{{Key: "a", Value: nil}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(t, docs))

	explain, err := coll.Explain(D{{Key: "a", Value: 1}}.Document(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a_1", explain.Index)
}

func TestGeoQueries(t *testing.T) {
	coll := newCollectionForTest(t,
		D{{Key: "_id", Value: 1}, {Key: "loc", Value: A{0.0, 0.0}}},
		D{{Key: "_id", Value: 2}, {Key: "loc", Value: A{5.0, 5.0}}},
		D{{Key: "_id", Value: 3}, {Key: "loc", Value: A{1.0, 1.0}}},
		D{{Key: "_id", Value: 4}, {Key: "name", Value: "nowhere"}},
	)
	name, err := coll.CreateIndex(D{{Key: "loc", Value: "2d"}}.Document(), nil)
	require.NoError(t, err)
	assert.Equal(t, "loc_2d", name)

	docs, err := coll.Find(D{{Key: "loc", Value: D{{Key: "$near", Value: A{0.0, 0.0}}}}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, ids(t, docs))

	box := D{{Key: "loc", Value: D{{Key: "$geoWithin", Value: D{{Key: "$box", Value: A{A{-1.0, -1.0}, A{2.0, 2.0}}}}}}}}.Document()
	docs, err = coll.Find(box)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(t, docs))

	explain, err := coll.Explain(box, nil)
	require.NoError(t, err)
	assert.Equal(t, "loc_2d", explain.Index)
	assert.Equal(t, 2, explain.Matched)
}

func TestNearLimitFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NearLimit = 2
	coll := openDB(t, cfg).Collection("places")
	for i := range 5 {
		insert(t, coll, D{{Key: "_id", Value: i}, {Key: "loc", Value: A{float64(i), 0.0}}})
	}
	docs, err := coll.Find(D{{Key: "loc", Value: D{{Key: "$near", Value: A{4.0, 0.0}}}}}.Document())
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, ids(t, docs))
}

func TestCollectionStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDocuments = 10
	coll := openDB(t, cfg).Collection("s")
	insert(t, coll, D{{Key: "_id", Value: 1}, {Key: "tags", Value: A{"a", "b"}}})
	_, err := coll.CreateIndex(D{{Key: "tags", Value: 1}}.Document(), nil)
	require.NoError(t, err)

	stats := coll.Stats()
	assert.Equal(t, "s", stats.Name)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 10, stats.MaxDocuments)
	require.Len(t, stats.Indexes, 2)
	assert.True(t, stats.Indexes[1].Multikey)
}

func TestConcurrentAccess(t *testing.T) {
	coll := newCollectionForTest(t)
	_, err := coll.CreateIndex(D{{Key: "worker", Value: 1}}.Document(), nil)
	require.NoError(t, err)

	errs := make(chan error, 8)
	for w := range 8 {
		go func() {
			for i := range 50 {
				doc := D{{Key: "_id", Value: fmt.Sprintf("%d-%d", w, i)}, {Key: "worker", Value: w}}
				if _, err := coll.InsertOne(doc.Document()); err != nil {
					errs <- err
					return
				}
				if _, err := coll.Count(D{{Key: "worker", Value: w}}.Document()); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}
	for range 8 {
		require.NoError(t, <-errs)
	}

	n, err := coll.Count(D{{Key: "worker", Value: 3}}.Document())
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, 400, coll.Stats().Count)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{nil, ""},
		{&CapacityError{Collection: "c", Limit: 1}, "capacity"},
		{fmt.Errorf("insert document 3: %w", &index.DuplicateKeyError{Index: "_id_"}), "duplicate_key"},
		{&update.ConflictError{}, "update_conflict"},
		{ErrDocumentNotFound, "not_found"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, errorKind(tt.err))
	}
}
