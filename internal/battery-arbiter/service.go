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
	"encoding/json"
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	"github.com/sirupsen/logrus"
)

const (
	dbusName   = "org.cacophony.BatteryArbiter"
	dbusPath   = "/org/cacophony/BatteryArbiter"
	signalName = dbusName + ".Battery"
)

type service struct {
	host *Host
}

func startService(h *Host) (*dbus.Conn, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	s := &service{
		host: h,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return conn, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Devices returns the ids of the devices being tracked.
func (s service) Devices() ([]string, *dbus.Error) {
	ids, err := s.host.Devices()
	if err != nil {
		return nil, makeDbusError(".Devices", err)
	}
	return ids, nil
}

// BestEstimate returns the battery percentage of a device, -1 when unknown.
func (s service) BestEstimate(device string) (int32, *dbus.Error) {
	e, err := s.host.Estimate(device)
	if err != nil {
		return -1, makeDbusError(".BestEstimate", err)
	}
	return int32(e.Percent), nil
}

// LearnedParameters returns what has been learned about a device as JSON.
func (s service) LearnedParameters(device string) (string, *dbus.Error) {
	p, err := s.host.Learned(device)
	if err != nil {
		return "", makeDbusError(".LearnedParameters", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", makeDbusError(".LearnedParameters", err)
	}
	return string(data), nil
}

func (s service) ShouldSkipSecondaryPolling(device string) (bool, *dbus.Error) {
	skip, err := s.host.ShouldSkipSecondaryPolling(device)
	if err != nil {
		return false, makeDbusError(".ShouldSkipSecondaryPolling", err)
	}
	return skip, nil
}

// Commit ends the learning window of a device now.
func (s service) Commit(device string) *dbus.Error {
	if err := s.host.CommitNow(device); err != nil {
		return makeDbusError(".Commit", err)
	}
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}

// batterySignal emits the battery signal whenever an estimate changes.
type batterySignal struct {
	conn *dbus.Conn
	log  *logrus.Entry
}

func (b *batterySignal) EstimateChanged(e Estimate) {
	err := b.conn.Emit(dbus.ObjectPath(dbusPath), signalName, e.Device, int32(e.Percent), e.Source, e.Decided)
	if err != nil {
		b.log.Warnf("Failed to send battery signal: %v", err)
	}
}

func (b *batterySignal) SourceDecided(Estimate) {}
