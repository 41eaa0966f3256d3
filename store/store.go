// Package store persists golden vector sets and sweep reports in BadgerDB so
// runs against an external circuit can be checked against earlier results.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"fxcnn/tensor"
	"fxcnn/verify"
)

// Storage key prefixes
const (
	prefixVectors = "vectors/"
	prefixReport  = "report/"
)

// ErrNotFound is returned when no entry exists under a name.
var ErrNotFound = errors.New("store: not found")

// VectorSet is a named batch of raw values. Shape is (H, W, C) when the set
// holds a volume and zero for a flat stream.
type VectorSet struct {
	Name    string    `json:"name"`
	Width   int       `json:"width"`
	Shape   [3]int    `json:"shape"`
	Values  []int64   `json:"values"`
	Created time.Time `json:"created"`
}

// Volume rebuilds the stored volume.
func (s *VectorSet) Volume() (*tensor.Volume, error) {
	return tensor.NewWithData(s.Shape[0], s.Shape[1], s.Shape[2], s.Values)
}

// VectorStore wraps BadgerDB for golden data
type VectorStore struct {
	db *badger.DB
}

// Open opens or creates a store in dir.
func Open(dir string) (*VectorStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging
	return open(opts)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*VectorStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*VectorStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &VectorStore{db: db}, nil
}

// Close closes the database
func (s *VectorStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *VectorStore) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *VectorStore) get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// PutVectors stores set under its name, replacing any earlier set.
func (s *VectorStore) PutVectors(set *VectorSet) error {
	if set.Name == "" {
		return errors.New("store: vector set needs a name")
	}
	if set.Created.IsZero() {
		set.Created = time.Now()
	}
	return s.put(prefixVectors+set.Name, set)
}

// PutVolume stores v as a vector set of the given bit width.
func (s *VectorStore) PutVolume(name string, width int, v *tensor.Volume) error {
	return s.PutVectors(&VectorSet{
		Name:   name,
		Width:  width,
		Shape:  [3]int{v.H, v.W, v.C},
		Values: append([]int64(nil), v.Data...),
	})
}

// GetVectors loads the named set.
func (s *VectorStore) GetVectors(name string) (*VectorSet, error) {
	var set VectorSet
	if err := s.get(prefixVectors+name, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// ListVectors returns the names of all stored sets in sorted order.
func (s *VectorStore) ListVectors() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixVectors)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), prefixVectors))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// DeleteVectors removes the named set. Deleting a missing set is not an error.
func (s *VectorStore) DeleteVectors(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixVectors + name))
	})
}

// PutReport stores an activation sweep report.
func (s *VectorStore) PutReport(name string, rep *verify.SweepReport) error {
	return s.put(prefixReport+name, rep)
}

// GetReport loads an activation sweep report.
func (s *VectorStore) GetReport(name string) (*verify.SweepReport, error) {
	var rep verify.SweepReport
	if err := s.get(prefixReport+name, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
