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

// Package percent evaluates a battery algorithm for a single raw reading.
package percent

import (
	"github.com/TheCacophonyProject/battery-arbiter/curve"
)

// Fallback bounds for linear interpolation, the working range of a 3V lithium
// coin cell.
const (
	DefaultVoltageMin = 2.5
	DefaultVoltageMax = 3.0
)

// Calculate turns raw into a percentage using alg. Curve algorithms carry
// their own voltage range and ignore vmin and vmax. An unset algorithm
// interpolates linearly between vmin and vmax, or between the default bounds
// when those are unusable.
func Calculate(raw float64, alg curve.Algorithm, vmin, vmax float64) curve.Percent {
	switch alg {
	case curve.Direct, curve.Multiply2, curve.Divide2:
		return curve.ApplyScalar(raw, alg)
	case curve.Linear:
		return curve.ApplyLinear(raw, vmin, vmax)
	case curve.CoinCell, curve.Alkaline, curve.Lithium:
		c, _ := alg.Curve()
		return curve.ApplyCurve(raw, c)
	case curve.Unset:
		if !(vmax > vmin && vmin > 0) {
			vmin, vmax = DefaultVoltageMin, DefaultVoltageMax
		}
		return curve.ApplyLinear(raw, vmin, vmax)
	}
	return curve.Unknown
}
