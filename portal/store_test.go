package portal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wave-portal/db"
	"wave-portal/models"
	"wave-portal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	repo, err := repository.NewWaveRepository(ldb)
	require.NoError(t, err)
	return NewStore(repo)
}

func TestWatch_InitialAndLatest(t *testing.T) {
	s := newTestStore(t)
	snaps, cancel := s.Watch()
	defer cancel()

	first := <-snaps
	assert.False(t, first.Connected)

	// a reader that falls behind sees only the newest state
	s.bindAccount("0xABC")
	s.setCount(4)
	s.setDraft("hey")

	select {
	case snap := <-snaps:
		assert.Equal(t, "0xABC", snap.Account)
		assert.Equal(t, uint64(4), snap.WaveCount)
		assert.Equal(t, "hey", snap.PendingMessage)
		assert.Greater(t, snap.Version, first.Version)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestWatch_CancelClosesChannel(t *testing.T) {
	s := newTestStore(t)
	snaps, cancel := s.Watch()
	<-snaps

	cancel()
	cancel()
	_, ok := <-snaps
	assert.False(t, ok)

	// mutations after cancel do not panic
	s.setCount(1)
}

func TestClaimSubmission_Guards(t *testing.T) {
	s := newTestStore(t)

	_, err := s.claimSubmission("x")
	require.ErrorIs(t, err, ErrNotConnected)

	s.bindAccount("0xABC")
	account, err := s.claimSubmission("x")
	require.NoError(t, err)
	assert.Equal(t, "0xABC", account)
	assert.Equal(t, models.SubmissionAwaitingSignature, s.Snapshot().Submission)

	_, err = s.claimSubmission("y")
	require.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, "x", s.Snapshot().PendingMessage)

	s.finishSubmission()
	_, err = s.claimSubmission("y")
	require.NoError(t, err)
}

func TestRebaseFeed_ReportsNewHistoryRecords(t *testing.T) {
	s := newTestStore(t)
	a := models.Wave{ID: "a", Message: "gm"}
	b := models.Wave{ID: "b", Message: "gn"}

	added, err := s.rebaseFeed([]models.Wave{a, a})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.rebaseFeed([]models.Wave{a, a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Len(t, s.Snapshot().Waves, 3)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestStore(t)
	_, err := s.appendWave(models.Wave{ID: "a", Message: "one"})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Waves[0].Message = "changed"
	s.raiseAlert("boom")
	snap2 := s.Snapshot()
	snap2.Alert.Message = "changed"

	again := s.Snapshot()
	assert.Equal(t, "one", again.Waves[0].Message)
	assert.Equal(t, "boom", again.Alert.Message)
}
