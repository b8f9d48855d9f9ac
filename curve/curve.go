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

// Package curve converts raw battery readings into a percentage, either with a
// simple scalar transform or by interpolating a chemistry discharge curve.
// Every function is total: bad input gives Unknown rather than an error.
package curve

import (
	"math"
	"strconv"
)

// Percent is a battery percentage in [0, 100], or Unknown.
type Percent int

// Unknown is returned when no valid percentage could be determined. It is
// distinct from 0%.
const Unknown Percent = -1

// Known reports whether p holds a real percentage.
func (p Percent) Known() bool {
	return p >= 0 && p <= 100
}

func (p Percent) String() string {
	if !p.Known() {
		return "unknown"
	}
	return strconv.Itoa(int(p)) + "%"
}

// Point is one control point of a discharge curve.
type Point struct {
	Voltage float64
	Percent float64
}

// Curve is a piecewise linear voltage to percent mapping for one chemistry.
// Points are ordered by descending voltage.
type Curve struct {
	Name   string
	Points []Point
}

// MinVoltage returns the voltage at which the curve reaches 0%.
func (c Curve) MinVoltage() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[len(c.Points)-1].Voltage
}

// MaxVoltage returns the voltage at which the curve reaches 100%.
func (c Curve) MaxVoltage() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[0].Voltage
}

// Built in discharge curves.
var (
	// CoinCellCurve is a 3V CR2032 style lithium coin cell, close to linear.
	CoinCellCurve = Curve{
		Name: "cr2032",
		Points: []Point{
			{3.0, 100},
			{2.9, 90},
			{2.8, 70},
			{2.7, 50},
			{2.6, 30},
			{2.5, 15},
			{2.4, 5},
			{2.0, 0},
		},
	}

	// AlkalineCurve is two alkaline AAA cells in series, a steeper discharge.
	AlkalineCurve = Curve{
		Name: "alkaline",
		Points: []Point{
			{3.2, 100},
			{3.0, 80},
			{2.8, 60},
			{2.6, 40},
			{2.4, 20},
			{2.2, 10},
			{2.0, 0},
		},
	}

	// LithiumCurve is a CR123A style primary lithium cell with a flat plateau.
	LithiumCurve = Curve{
		Name: "lithium",
		Points: []Point{
			{3.0, 100},
			{2.95, 90},
			{2.9, 70},
			{2.85, 50},
			{2.8, 30},
			{2.7, 10},
			{2.5, 0},
		},
	}
)

func invalid(raw float64) bool {
	return raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0)
}

func clamp(v float64) Percent {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return Percent(r)
}

// ApplyScalar multiplies raw by the factor of a scalar algorithm (1, 2 or 0.5)
// and clamps the rounded result to [0, 100]. Non scalar algorithms give Unknown.
func ApplyScalar(raw float64, alg Algorithm) Percent {
	if invalid(raw) {
		return Unknown
	}
	var factor float64
	switch alg {
	case Direct:
		factor = 1
	case Multiply2:
		factor = 2
	case Divide2:
		factor = 0.5
	default:
		return Unknown
	}
	return clamp(raw * factor)
}

// ApplyLinear maps raw linearly from [min, max] onto [0, 100].
func ApplyLinear(raw, min, max float64) Percent {
	if invalid(raw) || math.IsNaN(min) || math.IsNaN(max) || max <= min {
		return Unknown
	}
	if math.IsInf(min, 0) || math.IsInf(max, 0) {
		return Unknown
	}
	return clamp((raw - min) / (max - min) * 100)
}

// ApplyCurve interpolates raw between the two control points that bracket it.
// Voltages above the curve give 100 and below it give 0. The bracket search is
// inclusive at both ends so a reading on a control point returns that point's
// percent.
func ApplyCurve(raw float64, c Curve) Percent {
	if invalid(raw) || len(c.Points) == 0 {
		return Unknown
	}
	points := c.Points
	if raw > points[0].Voltage {
		return 100
	}
	if len(points) == 1 {
		if raw == points[0].Voltage {
			return clamp(points[0].Percent)
		}
		return 0
	}
	for i := 0; i < len(points)-1; i++ {
		hi, lo := points[i], points[i+1]
		if raw >= lo.Voltage && raw <= hi.Voltage {
			span := hi.Voltage - lo.Voltage
			if span <= 0 {
				return clamp(hi.Percent)
			}
			ratio := (raw - lo.Voltage) / span
			return clamp(lo.Percent + ratio*(hi.Percent-lo.Percent))
		}
	}
	return 0
}
