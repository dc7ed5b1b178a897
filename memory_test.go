package s3select

import (
	"context"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugr-lab/s3select-go/record"
)

// TestMemoryLeaks uses memory.NewCheckedAllocator to detect Arrow buffers
// that are never released.
func TestMemoryLeaks(t *testing.T) {
	ctx := context.Background()
	in := RequestInput{Bucket: "b", Key: "people.csv", Schema: peopleSchema()}

	t.Run("ScanArrow", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		store := newFakeStore()
		store.results["people.csv"] = peopleCSV(500)
		s := newTestScanner(t, testConfig(), store)

		rr, err := s.ScanArrow(ctx, in, alloc, 64)
		require.NoError(t, err)
		var n int64
		for rr.Next() {
			n += rr.RecordBatch().NumRows()
		}
		rr.Release()
		assert.Equal(t, int64(500), n)
	})

	t.Run("ScanArrowFailure", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		store := newFakeStore()
		// Batches built before the bad record must be released.
		store.results["people.csv"] = peopleCSV(200) + "1,x\n"
		s := newTestScanner(t, testConfig(), store)

		_, err := s.ScanArrow(ctx, in, alloc, 64)
		assert.ErrorIs(t, err, record.ErrRecordArityMismatch)
		assert.True(t, store.allClosed())
	})

	t.Run("NextBatchEarlyClose", func(t *testing.T) {
		alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
		defer alloc.AssertSize(t, 0)

		store := newFakeStore()
		store.results["people.csv"] = peopleCSV(300)
		s := newTestScanner(t, testConfig(), store)

		rows, err := s.Scan(ctx, in)
		require.NoError(t, err)

		batch, err := rows.NextBatch(alloc, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(100), batch.NumRows())
		batch.Release()

		require.NoError(t, rows.Close())
		_, err = rows.NextBatch(alloc, 100)
		assert.ErrorIs(t, err, io.EOF)
		assert.True(t, store.allClosed())
	})
}
