// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T, maxBytes int64, maxRetries int) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"), maxBytes, maxRetries)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestPushPeekFIFOOrder(t *testing.T) {
	q := openTestQueue(t, 0, 0)

	_, err := q.Push([]byte("first"))
	require.NoError(t, err)
	_, err = q.Push([]byte("second"))
	require.NoError(t, err)

	e, err := q.Peek()
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "first", string(e.Bytes))
}

func TestCommitRemovesEntryNoDoubleDelivery(t *testing.T) {
	q := openTestQueue(t, 0, 0)

	_, err := q.Push([]byte("only"))
	require.NoError(t, err)

	e, err := q.Peek()
	require.NoError(t, err)
	require.NoError(t, q.Commit(e.RowID))

	after, err := q.Peek()
	require.NoError(t, err)
	require.Nil(t, after)

	size, err := q.Size()
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestPushDropsOldestOverByteCap(t *testing.T) {
	q := openTestQueue(t, 10, 0)

	_, err := q.Push([]byte("12345")) // 5 bytes
	require.NoError(t, err)
	_, err = q.Push([]byte("67890")) // 10 bytes total, still fits
	require.NoError(t, err)

	dropped, err := q.Push([]byte("abcde")) // would be 15 bytes: evict oldest first
	require.NoError(t, err)
	require.True(t, dropped)

	e, err := q.Peek()
	require.NoError(t, err)
	require.Equal(t, "67890", string(e.Bytes))

	size, err := q.Size()
	require.NoError(t, err)
	require.Equal(t, int64(2), size)
}

func TestRequeueIncrementsRetries(t *testing.T) {
	q := openTestQueue(t, 0, 5)

	_, err := q.Push([]byte("x"))
	require.NoError(t, err)
	e, err := q.Peek()
	require.NoError(t, err)

	dropped, err := q.Requeue(e.RowID)
	require.NoError(t, err)
	require.False(t, dropped)

	e2, err := q.Peek()
	require.NoError(t, err)
	require.Equal(t, 1, e2.Retries)
}

func TestRequeueDropsOverMaxRetries(t *testing.T) {
	q := openTestQueue(t, 0, 2)

	_, err := q.Push([]byte("x"))
	require.NoError(t, err)
	e, err := q.Peek()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		dropped, err := q.Requeue(e.RowID)
		require.NoError(t, err)
		require.False(t, dropped)
	}

	dropped, err := q.Requeue(e.RowID)
	require.NoError(t, err)
	require.True(t, dropped, "third retry exceeds max_retries=2 and discards the entry")

	size, err := q.Size()
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestSizeCountsEntries(t *testing.T) {
	q := openTestQueue(t, 0, 0)

	for i := 0; i < 3; i++ {
		_, err := q.Push([]byte("e"))
		require.NoError(t, err)
	}

	size, err := q.Size()
	require.NoError(t, err)
	require.Equal(t, int64(3), size)
}
