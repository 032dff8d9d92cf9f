package raft

import (
	"encoding/binary"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerHardStateStore persists hard state as a single key in an
// embedded Badger database, for deployments that already run Badger for
// other durable state and would rather not manage a second file format.
type BadgerHardStateStore struct {
	db  *badger.DB
	key []byte
}

var hardStateKey = []byte("raft:hardstate")

// OpenBadgerHardStateStore opens (creating if necessary) a Badger
// database rooted at dirPath, dedicated to hard-state storage.
func OpenBadgerHardStateStore(dirPath string) (*BadgerHardStateStore, error) {
	opts := badger.DefaultOptions(dirPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerHardStateStore{db: db, key: hardStateKey}, nil
}

func (s *BadgerHardStateStore) Load() (HardState, error) {
	var hs HardState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			hs = decodeHardState(val)
			return nil
		})
	})
	if err != nil {
		return HardState{}, fmt.Errorf("load hard state: %w", err)
	}
	return hs, nil
}

func (s *BadgerHardStateStore) Save(hs HardState) error {
	val := encodeHardState(hs)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, val)
	})
	if err != nil {
		return fmt.Errorf("save hard state: %w", err)
	}
	return nil
}

// Close releases the underlying Badger database.
func (s *BadgerHardStateStore) Close() error {
	return s.db.Close()
}

func encodeHardState(hs HardState) []byte {
	buf := make([]byte, 8, 25)
	binary.LittleEndian.PutUint64(buf, hs.CurrentTerm)
	if hs.VotedFor == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	var idBuf [16]byte
	binary.LittleEndian.PutUint64(idBuf[0:8], hs.VotedFor.GroupID)
	binary.LittleEndian.PutUint64(idBuf[8:16], hs.VotedFor.NodeID)
	return append(buf, idBuf[:]...)
}

func decodeHardState(val []byte) HardState {
	var hs HardState
	if len(val) < 9 {
		return hs
	}
	hs.CurrentTerm = binary.LittleEndian.Uint64(val[0:8])
	if val[8] == 1 && len(val) >= 25 {
		id := NodeId{
			GroupID: binary.LittleEndian.Uint64(val[9:17]),
			NodeID:  binary.LittleEndian.Uint64(val[17:25]),
		}
		hs.VotedFor = &id
	}
	return hs
}
