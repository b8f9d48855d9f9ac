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
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/arbiter"
)

const stateFileSuffix = "_battery_state.json"

// FileStore writes one JSON file per device.
type FileStore struct {
	dir string
}

// persistentState is the file layout.
type persistentState struct {
	Device      string                    `json:"device"`
	Learned     arbiter.LearnedParameters `json:"learned"`
	LastUpdated time.Time                 `json:"last_updated"`
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+stateFileSuffix)
}

func (s *FileStore) Device(id string) arbiter.Store {
	return &fileDevice{store: s, id: id}
}

// Devices lists the devices with a saved state.
func (s *FileStore) Devices() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, stateFileSuffix) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, stateFileSuffix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *FileStore) Close() error {
	return nil
}

type fileDevice struct {
	store *FileStore
	id    string
}

func (d *fileDevice) Persist(p arbiter.LearnedParameters) error {
	state := persistentState{
		Device:      d.id,
		Learned:     p,
		LastUpdated: time.Now(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal battery state: %w", err)
	}
	path := d.store.path(d.id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to save battery state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Restore returns nil when nothing has been saved for the device.
func (d *fileDevice) Restore() (*arbiter.LearnedParameters, error) {
	data, err := os.ReadFile(d.store.path(d.id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state persistentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt battery state for %s: %w", d.id, err)
	}
	return &state.Learned, nil
}
