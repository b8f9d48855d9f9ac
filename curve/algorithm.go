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

package curve

import (
	"fmt"
	"strings"
)

// Algorithm selects how a raw value is turned into a percentage.
type Algorithm int

const (
	// Unset means no algorithm has been chosen yet.
	Unset Algorithm = iota
	Direct
	Multiply2
	Divide2
	// Linear interpolates between a minimum and maximum voltage.
	Linear
	CoinCell
	Alkaline
	Lithium
)

var algorithmNames = map[Algorithm]string{
	Unset:     "",
	Direct:    "direct",
	Multiply2: "mult2",
	Divide2:   "div2",
	Linear:    "linear",
	CoinCell:  "cr2032",
	Alkaline:  "alkaline",
	Lithium:   "lithium",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		if name == "" {
			return "unset"
		}
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// IsScalar reports whether the algorithm only rescales a percentage.
func (a Algorithm) IsScalar() bool {
	return a == Direct || a == Multiply2 || a == Divide2
}

// IsVoltage reports whether the algorithm expects a voltage input.
func (a Algorithm) IsVoltage() bool {
	return a == Linear || a.IsCurve()
}

// IsCurve reports whether the algorithm is a chemistry discharge curve.
func (a Algorithm) IsCurve() bool {
	_, ok := a.Curve()
	return ok
}

// Curve returns the discharge curve for a curve algorithm.
func (a Algorithm) Curve() (Curve, bool) {
	switch a {
	case CoinCell:
		return CoinCellCurve, true
	case Alkaline:
		return AlkalineCurve, true
	case Lithium:
		return LithiumCurve, true
	}
	return Curve{}, false
}

// ParseAlgorithm returns the algorithm for a tag such as "mult2" or "cr2032".
// An empty tag parses as Unset.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "unset" {
		return Unset, nil
	}
	for alg, name := range algorithmNames {
		if name == s {
			return alg, nil
		}
	}
	return Unset, fmt.Errorf("unknown battery algorithm %q", s)
}

func (a Algorithm) MarshalText() ([]byte, error) {
	name, ok := algorithmNames[a]
	if !ok {
		return nil, fmt.Errorf("invalid battery algorithm %d", int(a))
	}
	return []byte(name), nil
}

func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
