package session

import (
	"strings"
	"testing"
	"time"

	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *dataset.Table {
	t.Helper()
	table, err := dataset.ReadCSV(strings.NewReader("customerID,tenure\na,1\n"))
	require.NoError(t, err)
	return table
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore(time.Minute, 0)
	defer s.Close()

	sess := s.Create("upload.csv", testTable(t), dataset.Report{})
	require.NotEmpty(t, sess.ID)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, "upload.csv", got.Source)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	s.Delete(sess.ID)
	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	s := NewStore(10*time.Millisecond, 0)
	defer s.Close()

	sess := s.Create("a.csv", testTable(t), dataset.Report{})
	time.Sleep(20 * time.Millisecond)

	_, err := s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stats := s.Stats()
	assert.Equal(t, 1, stats["expired_sessions"])

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Size())
}

func TestStore_CleanupLoop(t *testing.T) {
	s := NewStore(5*time.Millisecond, 5*time.Millisecond)
	defer s.Close()

	s.Create("a.csv", testTable(t), dataset.Report{})

	assert.Eventually(t, func() bool { return s.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := NewStore(time.Minute, time.Millisecond)
	s.Close()
	s.Close()
}
