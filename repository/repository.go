package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"wave-portal/db"
	"wave-portal/models"

	"github.com/syndtr/goleveldb/leveldb"
)

const (
	seqPrefix  = "seq:"  // feed position -> wave JSON
	idPrefix   = "id:"   // wave ID -> waves in the feed with that ID
	livePrefix = "live:" // wave ID -> live deliveries seen with that ID
)

// It abstracts the feed storage from the synchronization logic
type WaveRepositoryInterface interface {
	Append(wave models.Wave) (bool, error)
	Rebase(history []models.Wave) (int, error)
	All() ([]models.Wave, error)
	Len() int
}

// WaveRepository keeps the wave feed in discovery order in LevelDB.
// Wave IDs are not unique: identical waves mined in one block share an ID,
// so the feed tracks how many waves it holds per ID rather than a set.
type WaveRepository struct {
	db   *db.LevelDB
	mu   sync.Mutex
	next uint64
	size int
}

// NewWaveRepository creates a WaveRepository, resuming the sequence from any stored waves
func NewWaveRepository(ldb *db.LevelDB) (*WaveRepository, error) {
	r := &WaveRepository{db: ldb}

	iter := ldb.NewIterator([]byte(seqPrefix))
	defer iter.Release()
	for iter.Next() {
		seq, err := parseSeq(iter.Key())
		if err != nil {
			return nil, err
		}
		r.next = seq + 1
		r.size++
	}
	return r, iter.Error()
}

// Append offers a live wave. The k-th live wave with an ID is stored only while the
// feed holds fewer than k waves with that ID; otherwise it is already there and false is returned.
func (r *WaveRepository) Append(wave models.Wave) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, err := r.count(liveKey(wave.ID))
	if err != nil {
		return false, err
	}
	live++
	held, err := r.count(idKey(wave.ID))
	if err != nil {
		return false, err
	}

	if held >= live {
		return false, r.db.Put(liveKey(wave.ID), countValue(live))
	}

	batch := new(leveldb.Batch)
	if err := putWave(batch, r.next, wave); err != nil {
		return false, err
	}
	batch.Put(idKey(wave.ID), countValue(held+1))
	batch.Put(liveKey(wave.ID), countValue(live))
	if err := r.db.Write(batch); err != nil {
		return false, err
	}
	r.next++
	r.size++
	return true, nil
}

// Rebase replaces the feed with history exactly as given, followed by previously held
// waves beyond what history accounts for, in their old order. It returns how many
// history records were not already in the feed.
func (r *WaveRepository) Rebase(history []models.Wave) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.all()
	if err != nil {
		return 0, err
	}

	held := make(map[string]int, len(current))
	batch := new(leveldb.Batch)
	for i, w := range current {
		held[w.ID]++
		batch.Delete(seqKey(uint64(i)))
		batch.Delete(idKey(w.ID))
	}

	inHistory := make(map[string]int, len(history))
	var seq uint64
	added := 0
	for _, w := range history {
		inHistory[w.ID]++
		if inHistory[w.ID] > held[w.ID] {
			added++
		}
		if err := putWave(batch, seq, w); err != nil {
			return 0, err
		}
		seq++
	}

	// the k-th held wave with an ID is covered by the k-th history record with that ID
	feed := make(map[string]int, len(inHistory)+len(held))
	for id, n := range inHistory {
		feed[id] = n
	}
	seen := make(map[string]int, len(held))
	for _, w := range current {
		seen[w.ID]++
		if seen[w.ID] <= inHistory[w.ID] {
			continue
		}
		if err := putWave(batch, seq, w); err != nil {
			return 0, err
		}
		feed[w.ID]++
		seq++
	}

	for id, n := range feed {
		batch.Put(idKey(id), countValue(n))
	}
	if err := r.db.Write(batch); err != nil {
		return 0, err
	}
	r.next = seq
	r.size = int(seq)
	return added, nil
}

// All returns the feed in discovery order
func (r *WaveRepository) All() ([]models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all()
}

// Len returns the number of waves in the feed
func (r *WaveRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *WaveRepository) all() ([]models.Wave, error) {
	iter := r.db.NewIterator([]byte(seqPrefix))
	defer iter.Release()

	waves := make([]models.Wave, 0, r.size)
	for iter.Next() {
		var w models.Wave
		if err := json.Unmarshal(iter.Value(), &w); err != nil {
			return nil, err
		}
		waves = append(waves, w)
	}
	return waves, iter.Error()
}

func (r *WaveRepository) count(key []byte) (int, error) {
	data, err := r.db.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func putWave(batch *leveldb.Batch, seq uint64, wave models.Wave) error {
	data, err := json.Marshal(wave)
	if err != nil {
		return err
	}
	batch.Put(seqKey(seq), data)
	return nil
}

func countValue(n int) []byte {
	return []byte(strconv.Itoa(n))
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", seqPrefix, seq))
}

func idKey(id string) []byte {
	return []byte(idPrefix + id)
}

func liveKey(id string) []byte {
	return []byte(livePrefix + id)
}

func parseSeq(key []byte) (uint64, error) {
	return strconv.ParseUint(string(key[len(seqPrefix):]), 10, 64)
}
