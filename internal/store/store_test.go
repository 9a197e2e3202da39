package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qde/internal/audit"
)

func testRecord(id string) *audit.Record {
	return &audit.Record{
		ID:        id,
		RunID:     "run-1",
		Timestamp: time.Now().UTC(),
		Step:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Kind:      audit.KindDecision,
		Symbol:    "AAPL",
		Summary:   "buy",
	}
}

func TestMemoryStoreAppendsInOrder(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.Write(testRecord("a")))
	require.NoError(t, s.Write(testRecord("b")))

	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.NoError(t, s.Close())
}

func TestMemoryStoreRecordsReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Write(testRecord("a")))

	records := s.Records()
	records[0] = testRecord("tampered")

	assert.Equal(t, "a", s.Records()[0].ID)
}

func TestNopStoreDiscards(t *testing.T) {
	s := NewNopStore()
	assert.NoError(t, s.Write(testRecord("a")))
	assert.NoError(t, s.Close())
}
