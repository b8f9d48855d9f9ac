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

package profile

import (
	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/curve"
)

// Profiles collected from Zigbee2MQTT device definitions, ZHA quirks and
// battery datasheets.
var manufacturerProfiles = map[string]Profile{
	// Soil sensors
	"_TZE284_oitavov2": {
		Chemistry:      ChemistryCR2032,
		Channel:        channel.VendorDatapointPercent,
		Algorithm:      curve.Direct,
		VoltageMin:     2.5,
		VoltageMax:     3.0,
		Datapoint:      15,
		StateDatapoint: 14,
		Notes:          "QT-07S soil sensor",
	},
	"_TZE284_aao3yzhs": {
		Chemistry:      ChemistryCR2032,
		Channel:        channel.VendorDatapointPercent,
		Algorithm:      curve.Direct,
		VoltageMin:     2.5,
		VoltageMax:     3.0,
		Datapoint:      15,
		StateDatapoint: 14,
		Notes:          "Soil sensor variant",
	},
	"_TZE200_myd45weu": {
		Chemistry:  ChemistryCR2450,
		Channel:    channel.VendorDatapointPercent,
		Algorithm:  curve.Direct,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Datapoint:  15,
		Notes:      "Soil sensor",
	},

	// Climate sensors, the battery datapoint is half the percentage
	"_TZE284_vvmbj46n": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.VendorDatapointPercent,
		Algorithm:  curve.Multiply2,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Datapoint:  4,
		Notes:      "TH05Z LCD climate monitor",
	},
	"_TZE200_vvmbj46n": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.VendorDatapointPercent,
		Algorithm:  curve.Multiply2,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Datapoint:  4,
		Notes:      "ONENUO TH05Z",
	},
	"_TZE200_bjawzodf": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.VendorDatapointPercent,
		Algorithm:  curve.Multiply2,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Datapoint:  4,
		Notes:      "Climate sensor",
	},
	"_TZE200_a8sdabtg": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.VendorDatapointPercent,
		Algorithm:  curve.Direct,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Datapoint:  4,
		Notes:      "Climate sensor, direct percent",
	},

	// SOS buttons, power configuration reads time out
	"_TZ3000_0dumfk2z": {
		Chemistry:            ChemistryCR2032,
		Channel:              channel.VendorDatapointPercent,
		Algorithm:            curve.Direct,
		VoltageMin:           2.5,
		VoltageMax:           3.0,
		SkipSecondaryPolling: true,
		Datapoint:            101,
		Notes:                "SOS button",
	},
	"_TZ3000_fdr5rqsn": {
		Chemistry:            ChemistryCR2032,
		Channel:              channel.VendorDatapointPercent,
		Algorithm:            curve.Direct,
		VoltageMin:           2.5,
		VoltageMax:           3.0,
		SkipSecondaryPolling: true,
		Datapoint:            101,
		Notes:                "SOS button variant",
	},

	// Motion sensors
	"_TZ3000_mcxw5ehu": {
		Chemistry:  ChemistryAAAAlkaline,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.Alkaline,
		VoltageMin: 2.0,
		VoltageMax: 3.0,
		Notes:      "PIR motion sensor, 2xAAA",
	},
	"_TZ3000_kmh5qpmb": {
		Chemistry:  ChemistryCR123A,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.Lithium,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Notes:      "PIR motion sensor, CR123A",
	},

	// Contact and leak sensors
	"_TZ3000_26fmupbb": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.CoinCell,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Notes:      "Door/window contact",
	},
	"_TZ3000_decxrtwa": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.CoinCell,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Notes:      "Contact sensor",
	},
	"_TZ3000_fxwsnmhb": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.CoinCell,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Notes:      "Water leak sensor",
	},

	// Remotes
	"_TZ3400_keyjqthh": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.CoinCell,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Notes:      "1-button scene switch",
	},
	"_TZ3000_bi6lpsew": {
		Chemistry:  ChemistryCR2032,
		Channel:    channel.StandardVoltage,
		Algorithm:  curve.CoinCell,
		VoltageMin: 2.5,
		VoltageMax: 3.0,
		Notes:      "Scene switch",
	},

	// Radar presence sensors
	"_TZE200_rhgsbacq": {Chemistry: ChemistryUSB, Notes: "mmWave radar, USB powered"},
	"_TZE204_sxm7l9xa": {Chemistry: ChemistryUSB, Notes: "24GHz radar, USB/DC powered"},

	// Switches and outlets
	"_TZ3000_h1ipgkwn": {Chemistry: ChemistryMains, Notes: "2-gang switch"},
	"LELLKI":           {Chemistry: ChemistryMains, Notes: "USB outlet"},
}

var modelPrefixProfiles = []PrefixProfile{
	{"TS0601", Profile{
		Channel:   channel.VendorDatapointPercent,
		Algorithm: curve.Direct,
		Datapoint: 4,
		Notes:     "Generic vendor datapoint device",
	}},
	{"TS0001", Profile{Chemistry: ChemistryMains}},
	{"TS0002", Profile{Chemistry: ChemistryMains}},
	{"TS0003", Profile{Chemistry: ChemistryMains}},
	{"TS0004", Profile{Chemistry: ChemistryMains}},
	{"TS011F", Profile{Chemistry: ChemistryMains}},
	{"TS0115", Profile{Chemistry: ChemistryMains}},
	{"TS0201", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
	{"TS0202", Profile{Chemistry: ChemistryAAAAlkaline, Channel: channel.StandardVoltage, Algorithm: curve.Alkaline}},
	{"TS0203", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
	{"TS0207", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
	{"TS0215A", Profile{
		Chemistry: ChemistryCR2032,
		Channel:   channel.VendorDatapointPercent,
		Algorithm: curve.Direct,
		Datapoint: 101,
	}},
	{"TS0041", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
	{"TS0042", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
	{"TS0043", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
	{"TS0044", Profile{Chemistry: ChemistryCR2032, Channel: channel.StandardVoltage, Algorithm: curve.CoinCell}},
}
