/*
battery-arbiter - Battery source arbitration for Zigbee devices
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/arbiter"
	"github.com/boltdb/bolt"
)

const boltFileName = "battery-arbiter.db"

var learnedBucket = []byte("learned")

// BoltStore keeps every device in a single bolt database.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, boltFileName), 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open battery database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(learnedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Device(id string) arbiter.Store {
	return &boltDevice{db: s.db, key: []byte(id)}
}

func (s *BoltStore) Devices() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(learnedBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltDevice struct {
	db  *bolt.DB
	key []byte
}

func (d *boltDevice) Persist(p arbiter.LearnedParameters) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(learnedBucket).Put(d.key, data)
	})
}

func (d *boltDevice) Restore() (*arbiter.LearnedParameters, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(learnedBucket).Get(d.key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}
	var p arbiter.LearnedParameters
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("corrupt battery state for %s: %w", d.key, err)
	}
	return &p, nil
}
