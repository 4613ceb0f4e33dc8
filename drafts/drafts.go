// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package drafts persists partially completed form data between sessions.
//
// Drafts are kept in a bbolt database with a bucket per form, each draft is a JSON
// document holding the exported form data and the time it was saved.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound indicates a draft that does not exist
var ErrNotFound = errors.New("draft not found")

type Logger interface {
	Debugf(format string, v ...any)
}

// Draft is a saved set of form data
type Draft struct {
	Form  string         `json:"-"`
	Key   string         `json:"-"`
	Saved time.Time      `json:"saved"`
	Data  map[string]any `json:"data"`
}

// Store is a draft database
type Store struct {
	db      *bolt.DB
	log     Logger
	timeout time.Duration
}

// Option configures a Store
type Option func(*Store)

// WithLogger logs store operations at debug level
func WithLogger(log Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithTimeout sets how long to wait for the database file lock, defaults to 1 second
func WithTimeout(t time.Duration) Option {
	return func(s *Store) {
		s.timeout = t
	}
}

// Open opens or creates the draft database in path
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{timeout: time.Second}
	for _, o := range opts {
		o(s)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("could not open draft store %s: %w", path, err)
	}
	s.db = db

	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Debugf(format, args...)
	}
}

// Save stores data as the draft key of form, an empty key saves a new draft under a random key.
// The key used is returned.
func (s *Store) Save(ctx context.Context, form string, key string, data map[string]any) (string, error) {
	if form == "" {
		return "", fmt.Errorf("form name is required")
	}

	err := ctx.Err()
	if err != nil {
		return "", err
	}

	if key == "" {
		key = uuid.NewString()
	}

	js, err := json.Marshal(&Draft{Saved: time.Now().UTC(), Data: data})
	if err != nil {
		return "", err
	}

	s.logf("Saving draft %s of form %s", key, form)

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(form))
		if err != nil {
			return err
		}

		return b.Put([]byte(key), js)
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

// Load retrieves the draft key of form
func (s *Store) Load(ctx context.Context, form string, key string) (*Draft, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var draft *Draft

	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(form))
		if b == nil {
			return ErrNotFound
		}

		js := b.Get([]byte(key))
		if js == nil {
			return ErrNotFound
		}

		draft, err = decode(form, key, js)
		return err
	})
	if err != nil {
		return nil, err
	}

	return draft, nil
}

// List retrieves all drafts of form ordered by key
func (s *Store) List(ctx context.Context, form string) ([]*Draft, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var drafts []*Draft

	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(form))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, js := c.First(); k != nil; k, js = c.Next() {
			err := ctx.Err()
			if err != nil {
				return err
			}

			d, err := decode(form, string(k), js)
			if err != nil {
				return err
			}
			drafts = append(drafts, d)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("Found %d drafts of form %s", len(drafts), form)

	return drafts, nil
}

// Delete removes the draft key of form, the bucket of the form is removed with its last draft
func (s *Store) Delete(ctx context.Context, form string, key string) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.logf("Deleting draft %s of form %s", key, form)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(form))
		if b == nil || b.Get([]byte(key)) == nil {
			return ErrNotFound
		}

		err := b.Delete([]byte(key))
		if err != nil {
			return err
		}

		k, _ := b.Cursor().First()
		if k == nil {
			return tx.DeleteBucket([]byte(form))
		}

		return nil
	})
}

func decode(form string, key string, js []byte) (*Draft, error) {
	var d Draft
	err := json.Unmarshal(js, &d)
	if err != nil {
		return nil, fmt.Errorf("invalid draft %s of form %s: %w", key, form, err)
	}

	d.Form = form
	d.Key = key

	return &d, nil
}
