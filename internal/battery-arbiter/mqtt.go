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
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheCacophonyProject/battery-arbiter/channel"
	"github.com/TheCacophonyProject/battery-arbiter/profile"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	identityTopic  = "identity"
	batteryTopic   = "battery"
	datapointTopic = "datapoint"
	removeTopic    = "remove"
	estimateTopic  = "estimate"
	getTopic       = "get"
)

type messageKind int

const (
	identityMessage messageKind = iota
	batteryMessage
	datapointMessage
	removeMessage
)

// message is a parsed telemetry message for one device.
type message struct {
	kind      messageKind
	device    string
	identity  profile.Identity
	channel   channel.Kind
	datapoint uint8
	value     float64
}

type datapointPayload struct {
	DP    uint8   `json:"dp"`
	Value float64 `json:"value"`
}

type identityPayload struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// parseMessage splits <prefix>/<device>/<kind>[/<channel>] and decodes the payload.
func parseMessage(prefix, topic string, payload []byte) (message, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return message{}, fmt.Errorf("topic %q is not under %q", topic, prefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		return message{}, fmt.Errorf("malformed topic %q", topic)
	}
	m := message{device: parts[0]}

	switch {
	case parts[1] == identityTopic && len(parts) == 2:
		var p identityPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return message{}, fmt.Errorf("bad identity for %s: %w", m.device, err)
		}
		m.kind = identityMessage
		m.identity = profile.Identity{Manufacturer: p.Manufacturer, Model: p.Model}
	case parts[1] == batteryTopic && len(parts) == 3:
		kind, err := channel.Parse(parts[2])
		if err != nil {
			return message{}, err
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
		if err != nil {
			return message{}, fmt.Errorf("bad %s reading for %s: %w", kind, m.device, err)
		}
		m.kind = batteryMessage
		m.channel = kind
		m.value = value
	case parts[1] == datapointTopic && len(parts) == 2:
		var p datapointPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return message{}, fmt.Errorf("bad datapoint for %s: %w", m.device, err)
		}
		m.kind = datapointMessage
		m.datapoint = p.DP
		m.value = p.Value
	case parts[1] == removeTopic && len(parts) == 2:
		m.kind = removeMessage
	default:
		return message{}, fmt.Errorf("unhandled topic %q", topic)
	}
	return m, nil
}

// mqttBridge feeds telemetry into the host and publishes estimates.
type mqttBridge struct {
	config *Config
	host   *Host
	log    *logrus.Entry

	mu     sync.Mutex
	client mqtt.Client
}

func newMQTTBridge(config *Config, host *Host, log *logrus.Entry) *mqttBridge {
	return &mqttBridge{config: config, host: host, log: log}
}

func (b *mqttBridge) topic(device string, parts ...string) string {
	return strings.Join(append([]string{b.config.topicPrefix(), device}, parts...), "/")
}

func (b *mqttBridge) subscriptions() []string {
	prefix := b.config.topicPrefix()
	return []string{
		prefix + "/+/" + identityTopic,
		prefix + "/+/" + batteryTopic + "/+",
		prefix + "/+/" + datapointTopic,
		prefix + "/+/" + removeTopic,
	}
}

func (b *mqttBridge) handleMessage(topic string, payload []byte) {
	// Our own estimates come back on the battery subscription.
	if strings.HasSuffix(topic, "/"+batteryTopic+"/"+estimateTopic) {
		return
	}
	m, err := parseMessage(b.config.topicPrefix(), topic, payload)
	if err != nil {
		b.log.Debugf("Ignoring message: %v", err)
		return
	}
	switch m.kind {
	case identityMessage:
		b.host.Identify(m.device, m.identity)
	case batteryMessage:
		b.host.Observe(m.device, m.channel, m.value)
	case datapointMessage:
		b.host.Datapoint(m.device, m.datapoint, m.value)
	case removeMessage:
		b.host.Remove(m.device)
	}
}

// run connects to the broker and stays connected until ctx is done.
func (b *mqttBridge) run(ctx context.Context) error {
	broker := fmt.Sprintf("tcp://%s:%d", b.config.MQTT.Broker, b.config.MQTT.Port)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("battery-arbiter-" + uuid.NewString())
	opts.SetUsername(b.config.MQTT.Username)
	opts.SetPassword(b.config.MQTT.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		b.log.Warnf("MQTT connection lost: %v", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		b.log.Infof("Connected to MQTT broker at %s", broker)
		b.mu.Lock()
		b.client = client
		b.mu.Unlock()

		for _, topic := range b.subscriptions() {
			token := client.Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
				b.handleMessage(msg.Topic(), msg.Payload())
			})
			if token.Wait() && token.Error() != nil {
				b.log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
			} else {
				b.log.Debugf("Subscribed to topic: %s", topic)
			}
		}
	})

	client := mqtt.NewClient(opts)
	b.log.Infof("Connecting to MQTT broker at %s...", broker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Disconnect(250)
		b.log.Info("Disconnected from MQTT broker")
	}
	return nil
}

func (b *mqttBridge) publish(topic string, retained bool, payload interface{}) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.IsConnected() {
		b.log.Debugf("Not connected, dropping publish to %s", topic)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Errorf("Failed to encode %s: %v", topic, err)
		return
	}
	token := client.Publish(topic, 1, retained, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			b.log.Warnf("Failed to publish to %s: %v", topic, token.Error())
		}
	}()
}

func (b *mqttBridge) EstimateChanged(e Estimate) {
	b.publish(b.topic(e.Device, batteryTopic, estimateTopic), true, e)
}

func (b *mqttBridge) SourceDecided(e Estimate) {
	b.publish(b.topic(e.Device, batteryTopic, estimateTopic), true, e)
}

// PollBattery asks the device to report its battery attributes.
func (b *mqttBridge) PollBattery(device string) {
	b.publish(b.topic(device, getTopic), false, map[string]string{"battery": ""})
}
