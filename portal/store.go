package portal

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wave-portal/logger"
	"wave-portal/models"
	"wave-portal/repository"
)

var (
	ErrNotConnected       = errors.New("no account connected")
	ErrSubmissionInFlight = errors.New("a wave is already being submitted")
)

// Store is the view state. Only the portal mutates it; readers take snapshots or watch.
type Store struct {
	mu   sync.Mutex
	repo repository.WaveRepositoryInterface

	account    string
	count      uint64
	submission models.SubmissionState
	pending    string
	alert      *models.Alert
	version    uint64

	watchers    map[int]chan models.Snapshot
	nextWatcher int
}

// NewStore creates an empty view state backed by repo for the wave feed.
func NewStore(repo repository.WaveRepositoryInterface) *Store {
	return &Store{
		repo:     repo,
		watchers: make(map[int]chan models.Snapshot),
	}
}

// Snapshot returns a copy of the current view state.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Watch delivers the current snapshot and then the latest one after every change.
// A slow reader only ever misses intermediate snapshots. cancel closes the channel.
func (s *Store) Watch() (<-chan models.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan models.Snapshot, 1)
	ch <- s.snapshotLocked()
	s.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) snapshotLocked() models.Snapshot {
	waves, err := s.repo.All()
	if err != nil {
		logger.Logger.Error("Failed to read wave feed", zap.Error(err))
	}
	snap := models.Snapshot{
		Account:        s.account,
		Connected:      s.account != "",
		WaveCount:      s.count,
		Waves:          waves,
		Submission:     s.submission,
		PendingMessage: s.pending,
		Version:        s.version,
	}
	if s.alert != nil {
		a := *s.alert
		snap.Alert = &a
	}
	return snap
}

// publishLocked bumps the version and hands the new snapshot to every watcher.
func (s *Store) publishLocked() {
	s.version++
	if len(s.watchers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
			// replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// bindAccount reports whether the identity changed.
func (s *Store) bindAccount(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == account {
		return false
	}
	s.account = account
	s.publishLocked()
	return true
}

func (s *Store) setCount(count uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == count {
		return
	}
	s.count = count
	s.publishLocked()
}

func (s *Store) setDraft(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = message
	s.publishLocked()
}

// claimSubmission moves Idle to AwaitingSignature and returns the account to submit from.
func (s *Store) claimSubmission(message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == "" {
		return "", ErrNotConnected
	}
	if s.submission != models.SubmissionIdle {
		return "", ErrSubmissionInFlight
	}
	s.submission = models.SubmissionAwaitingSignature
	s.pending = message
	s.publishLocked()
	return s.account, nil
}

func (s *Store) setSubmission(state models.SubmissionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submission = state
	s.publishLocked()
}

func (s *Store) finishSubmission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submission = models.SubmissionIdle
	s.pending = ""
	s.publishLocked()
}

func (s *Store) raiseAlert(message string) models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.Alert{
		ID:       uuid.NewString(),
		Message:  message,
		RaisedAt: time.Now().UTC(),
	}
	s.alert = &a
	s.publishLocked()
	return a
}

// dismissAlert clears the alert if id matches it.
func (s *Store) dismissAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alert == nil || s.alert.ID != id {
		return false
	}
	s.alert = nil
	s.publishLocked()
	return true
}

func (s *Store) appendWave(w models.Wave) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added, err := s.repo.Append(w)
	if err != nil || !added {
		return added, err
	}
	s.publishLocked()
	return true, nil
}

// rebaseFeed returns how many history records were new to the feed.
func (s *Store) rebaseFeed(history []models.Wave) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added, err := s.repo.Rebase(history)
	if err != nil {
		return 0, err
	}
	s.publishLocked()
	return added, nil
}
