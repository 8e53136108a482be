// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state manages persistent state for the futarchy VM.
package state

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrStateCorrupted = errors.New("state corrupted")

	// Database prefixes
	prefixMarket   = []byte("market:")
	prefixEscrow   = []byte("escrow:")
	prefixProposal = []byte("proposal:")
)

// State stores market, escrow and proposal records. Writes are staged in
// memory until Commit and dropped by Abort. Decoded records are cached;
// callers must not modify a record after handing it to Put or receiving it
// from Get. State is not safe for concurrent use.
type State struct {
	db      database.Database
	cache   *lru.Cache
	pending map[string][]byte
}

// New creates a state over db that caches up to cacheSize decoded records.
func New(db database.Database, cacheSize int) (*State, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}
	return &State{
		db:      db,
		cache:   cache,
		pending: make(map[string][]byte),
	}, nil
}

func (s *State) PutMarket(r *MarketRecord) error {
	return s.put(prefixMarket, r.ID, r)
}

func (s *State) GetMarket(id ids.ID) (*MarketRecord, error) {
	var r *MarketRecord
	if err := s.get(prefixMarket, id, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *State) PutEscrow(r *EscrowRecord) error {
	return s.put(prefixEscrow, r.Market, r)
}

func (s *State) GetEscrow(market ids.ID) (*EscrowRecord, error) {
	var r *EscrowRecord
	if err := s.get(prefixEscrow, market, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *State) PutProposal(r *ProposalRecord) error {
	return s.put(prefixProposal, r.ID, r)
}

func (s *State) GetProposal(id ids.ID) (*ProposalRecord, error) {
	var r *ProposalRecord
	if err := s.get(prefixProposal, id, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// Pending returns the number of staged writes.
func (s *State) Pending() int { return len(s.pending) }

// Commit writes every staged record in one batch.
func (s *State) Commit() error {
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	for key, data := range s.pending {
		if err := batch.Put([]byte(key), data); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	clear(s.pending)
	return nil
}

// Abort drops every staged record.
func (s *State) Abort() {
	for key := range s.pending {
		s.cache.Remove(key)
	}
	clear(s.pending)
}

// Reset drops staged records and every cached record, so later reads see
// only what reached the database.
func (s *State) Reset() {
	clear(s.pending)
	s.cache.Purge()
}

// Close drops staged records.
func (s *State) Close() error {
	s.Reset()
	return nil
}

func (s *State) put(prefix []byte, id ids.ID, record any) error {
	data, err := Codec.Marshal(CodecVersion, record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", id, err)
	}
	key := makeKey(prefix, id)
	s.pending[key] = data
	s.cache.Add(key, record)
	return nil
}

// get decodes the record stored under prefix and id into *dst, taking it
// from the cache when possible.
func (s *State) get(prefix []byte, id ids.ID, dst any) error {
	key := makeKey(prefix, id)
	if cached, ok := s.cache.Get(key); ok {
		return assign(dst, cached)
	}

	data, ok := s.pending[key]
	if !ok {
		var err error
		data, err = s.db.Get([]byte(key))
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		if err != nil {
			return err
		}
	}

	record, err := decode(prefix, data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStateCorrupted, id, err)
	}
	s.cache.Add(key, record)
	return assign(dst, record)
}

func decode(prefix []byte, data []byte) (any, error) {
	var record any
	switch string(prefix) {
	case string(prefixMarket):
		record = &MarketRecord{}
	case string(prefixEscrow):
		record = &EscrowRecord{}
	case string(prefixProposal):
		record = &ProposalRecord{}
	default:
		return nil, fmt.Errorf("unknown prefix %q", prefix)
	}
	if _, err := Codec.Unmarshal(data, record); err != nil {
		return nil, err
	}
	return record, nil
}

func assign(dst any, record any) error {
	switch d := dst.(type) {
	case **MarketRecord:
		r, ok := record.(*MarketRecord)
		if !ok {
			return ErrStateCorrupted
		}
		*d = r
	case **EscrowRecord:
		r, ok := record.(*EscrowRecord)
		if !ok {
			return ErrStateCorrupted
		}
		*d = r
	case **ProposalRecord:
		r, ok := record.(*ProposalRecord)
		if !ok {
			return ErrStateCorrupted
		}
		*d = r
	default:
		return ErrStateCorrupted
	}
	return nil
}

func makeKey(prefix []byte, id ids.ID) string {
	return string(prefix) + string(id[:])
}
