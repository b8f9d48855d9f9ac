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

package batteryd

import (
	"errors"
	"sync"

	"github.com/TheCacophonyProject/battery-arbiter/arbiter"
	"github.com/TheCacophonyProject/battery-arbiter/store"
	"github.com/sirupsen/logrus"
)

const persistQueueSize = 64

var errPersistQueueFull = errors.New("persist queue is full")

type persistRequest struct {
	id      string
	learned arbiter.LearnedParameters
}

// asyncStore hands writes to a background goroutine so the event loop never
// waits on the disk. Restores are read through directly.
type asyncStore struct {
	store store.Store
	log   *logrus.Entry
	queue chan persistRequest
	wg    sync.WaitGroup
}

func newAsyncStore(s store.Store, log *logrus.Entry) *asyncStore {
	a := &asyncStore{
		store: s,
		log:   log,
		queue: make(chan persistRequest, persistQueueSize),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

func (a *asyncStore) writer() {
	defer a.wg.Done()
	for req := range a.queue {
		if err := a.store.Device(req.id).Persist(req.learned); err != nil {
			a.log.Warnf("Failed to save battery state for %s: %v", req.id, err)
		} else {
			a.log.Debugf("Saved battery state for %s", req.id)
		}
	}
}

func (a *asyncStore) Device(id string) arbiter.Store {
	return &asyncDevice{parent: a, id: id}
}

// Close waits for queued writes then closes the underlying store.
func (a *asyncStore) Close() error {
	close(a.queue)
	a.wg.Wait()
	return a.store.Close()
}

type asyncDevice struct {
	parent *asyncStore
	id     string
}

func (d *asyncDevice) Persist(p arbiter.LearnedParameters) error {
	select {
	case d.parent.queue <- persistRequest{id: d.id, learned: p.Clone()}:
		return nil
	default:
		return errPersistQueueFull
	}
}

func (d *asyncDevice) Restore() (*arbiter.LearnedParameters, error) {
	return d.parent.store.Device(d.id).Restore()
}
