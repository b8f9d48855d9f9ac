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
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/arbiter"
	"github.com/TheCacophonyProject/battery-arbiter/store"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "/etc/cacophony/battery-arbiter.yaml"
	envPrefix         = "BATTERY_ARBITER"
)

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	TopicPrefix string `mapstructure:"topic-prefix"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type Config struct {
	MQTT                MQTTConfig    `mapstructure:"mqtt"`
	LearningWindow      time.Duration `mapstructure:"learning-window"`
	PollInterval        time.Duration `mapstructure:"poll-interval"`
	StateDir            string        `mapstructure:"state-dir"`
	Store               string        `mapstructure:"store"`
	ReadingsFile        string        `mapstructure:"readings-file"`
	ReadingsMaxLines    int           `mapstructure:"readings-max-lines"`
	DBus                bool          `mapstructure:"dbus"`
	Events              bool          `mapstructure:"events"`
	ReportPercentChange int           `mapstructure:"report-percent-change"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic-prefix", "zigbee2mqtt")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("learning-window", arbiter.DefaultLearningWindow)
	v.SetDefault("poll-interval", time.Hour)
	v.SetDefault("state-dir", "/var/lib/battery-arbiter")
	v.SetDefault("store", store.KindFile)
	v.SetDefault("readings-file", "/var/log/zigbee-battery-readings.csv")
	v.SetDefault("readings-max-lines", 20000)
	v.SetDefault("dbus", true)
	v.SetDefault("events", true)
	v.SetDefault("report-percent-change", 5)
}

// LoadConfig reads the config file at path, if it exists, with environment
// overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.MQTT.Username == "" {
		config.MQTT.Username = os.Getenv("MQTT_USERNAME")
	}
	if config.MQTT.Password == "" {
		config.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt.port %d", c.MQTT.Port)
	}
	if strings.Trim(c.MQTT.TopicPrefix, "/") == "" {
		return errors.New("mqtt.topic-prefix is required")
	}
	if c.LearningWindow <= 0 {
		return fmt.Errorf("learning-window must be positive, got %s", c.LearningWindow)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll-interval can not be negative, got %s", c.PollInterval)
	}
	if c.ReportPercentChange < 1 {
		return fmt.Errorf("report-percent-change must be at least 1, got %d", c.ReportPercentChange)
	}
	switch strings.ToLower(c.Store) {
	case store.KindFile, store.KindBolt:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

func (c *Config) topicPrefix() string {
	return strings.Trim(c.MQTT.TopicPrefix, "/")
}
