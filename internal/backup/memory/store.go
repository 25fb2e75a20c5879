// Package memory is an in-process backup.DocumentStore. Documents pass
// through JSON on the way in and out so callers see the same loose typing a
// remote store produces.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"smartbudget/internal/backup"
)

type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ backup.DocumentStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func docKey(collection, key string) string {
	return collection + "/" + key
}

func (s *Store) Put(ctx context.Context, collection, key string, doc backup.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docKey(collection, key)] = data
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, key string, fields backup.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := backup.Document{}
	if data, ok := s.docs[docKey(collection, key)]; ok {
		var err error
		if doc, err = decode(data); err != nil {
			return err
		}
	}
	for k, v := range fields {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	s.docs[docKey(collection, key)] = data
	return nil
}

func (s *Store) Get(ctx context.Context, collection, key string) (backup.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.docs[docKey(collection, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, backup.ErrNotFound
	}
	return decode(data)
}

// Len reports how many documents are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func decode(data []byte) (backup.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc backup.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
