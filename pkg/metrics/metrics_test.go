package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	start := time.Now()
	c.ObserveOperation("users", OpInsert, start, "")
	c.ObserveOperation("users", OpInsert, start, "duplicate_key")
	c.ObserveOperation("users", OpFind, start, "")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("users", OpInsert)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("users", OpInsert, "duplicate_key")))

	n, err := testutil.GatherAndCount(reg, "fongo_collection_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one histogram per operation")
}

func TestCollectorIndexAndDocuments(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.IndexSelected("users", "email_1", false)
	c.IndexSelected("users", "_id_", true)
	c.IndexSelected("users", "_id_", true)
	c.SetDocuments("users", 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.indexUse.WithLabelValues("users", "_id_", "true")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.documents.WithLabelValues("users")))

	c.ForgetCollection("users")
	assert.Equal(t, 0, testutil.CollectAndCount(c.documents))
	assert.Equal(t, 0, testutil.CollectAndCount(c.indexUse))
}

func TestUnregisteredCollectors(t *testing.T) {
	a := NewCollector(nil)
	b := NewCollector(nil)
	a.SetDocuments("x", 1)
	b.SetDocuments("x", 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.documents.WithLabelValues("x")))
}

func TestSlowOpLog(t *testing.T) {
	l := NewSlowOpLog(10*time.Millisecond, 2)

	assert.False(t, l.Record(SlowOp{Operation: OpFind, Duration: time.Millisecond}))
	assert.True(t, l.Record(SlowOp{Operation: OpFind, Collection: "a", Duration: 20 * time.Millisecond}))
	assert.True(t, l.Record(SlowOp{Operation: OpUpdate, Collection: "b", Duration: 50 * time.Millisecond}))
	assert.True(t, l.Record(SlowOp{Operation: OpDelete, Collection: "a", Duration: 30 * time.Millisecond}))

	entries := l.Entries()
	require.Len(t, entries, 2, "oldest entry is dropped")
	assert.Equal(t, OpUpdate, entries[0].Operation)
	assert.False(t, entries[0].Timestamp.IsZero())

	assert.Len(t, l.ByCollection("a"), 1)
	slowest := l.Slowest(5)
	require.Len(t, slowest, 2)
	assert.Equal(t, 50*time.Millisecond, slowest[0].Duration)

	l.Clear()
	assert.Empty(t, l.Entries())

	l.SetThreshold(0)
	assert.Equal(t, time.Duration(0), l.Threshold())
	assert.False(t, l.Record(SlowOp{Duration: time.Hour}), "a zero threshold disables the log")
}
