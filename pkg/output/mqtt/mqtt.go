package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "hx711-client"
	DefaultStateTopic = "hx711/%s"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"

	disconnectQuiesceMs = 250
)

type haUnit struct {
	unit        string
	deviceClass string
}

// haUnits maps variable units to Home Assistant units and device classes.
// Units not listed are passed through without a device class.
var haUnits = map[string]haUnit{
	sensor.UnitKilogram: {unit: "kg", deviceClass: "weight"},
}

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
	logger     golog.Logger
}

// NewMQTT connects to the broker and, when a discovery topic is set,
// announces every variable of the sensor identified by sensorID.
func NewMQTT(cfg config.MQTTConfig, sensorID string, vars []sensor.Variable, logger golog.Logger) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	m := newOutput(client, cfg, logger)
	if cfg.DiscoveryTopic != "" {
		m.announce(cfg, sensorID, vars)
	}
	return m, nil
}

func newOutput(client mqtt.Client, cfg config.MQTTConfig, logger golog.Logger) *MQTTOutput {
	st := cfg.StateTopic
	if st == "" {
		st = DefaultStateTopic
	}
	return &MQTTOutput{client: client, stateTopic: st, logger: logger}
}

// announce publishes retained Home Assistant discovery payloads, one per
// variable. A %s in the discovery topic is replaced by the variable code.
func (m *MQTTOutput) announce(cfg config.MQTTConfig, sensorID string, vars []sensor.Variable) {
	stateTopic := formatStateTopic(m.stateTopic, sensorID)
	for _, v := range vars {
		dTopic := cfg.DiscoveryTopic
		if strings.Contains(dTopic, "%s") {
			dTopic = fmt.Sprintf(dTopic, v.Code)
		} else if len(vars) > 1 {
			dTopic = strings.TrimSuffix(dTopic, "/") + "/" + v.Code + "/config"
		}
		payload := discoveryPayload(discoveryName(cfg, sensorID, v), stateTopic, discoveryUniqueID(cfg, sensorID, v), v)
		if err := m.publishJSON(dTopic, true, payload); err != nil {
			m.logger.Warnw("mqtt discovery publish", "topic", dTopic, "error", err)
		}
	}
}

// Publish sends one JSON document per sensor holding all of its variables.
func (m *MQTTOutput) Publish(readings []sensor.Reading) error {
	for _, group := range groupBySensor(readings) {
		topic := formatStateTopic(m.stateTopic, group[0].Sensor)
		if err := m.publishJSON(topic, false, statePayload(group)); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

// PublishRaw sends payload as is. Discovery documents are retained, state
// documents are not.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: format a state topic for a sensor using an optional formatter
func formatStateTopic(base, sensorID string) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, sensorID)
	}
	return base
}

func groupBySensor(readings []sensor.Reading) [][]sensor.Reading {
	var out [][]sensor.Reading
	idx := map[string]int{}
	for _, r := range readings {
		i, ok := idx[r.Sensor]
		if !ok {
			i = len(out)
			idx[r.Sensor] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], r)
	}
	return out
}

// helper: state document keyed by variable name, rounded to each
// variable's resolution
func statePayload(group []sensor.Reading) map[string]interface{} {
	payload := map[string]interface{}{
		"sensor":    group[0].Sensor,
		"timestamp": group[0].Timestamp.Format(time.RFC3339),
	}
	valid := true
	for _, r := range group {
		v, err := strconv.ParseFloat(r.Formatted(), 64)
		if err != nil {
			v = r.Value
		}
		payload[r.Variable] = v
		valid = valid && r.Valid
	}
	payload["valid"] = valid
	return payload
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig, sensorID string, v sensor.Variable) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = sensorID
	}
	return fmt.Sprintf("%s %s", name, v.Name)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig, sensorID string, v sensor.Variable) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID + "_" + sensorID
	}
	if v.UUID != "" {
		return v.UUID
	}
	return fmt.Sprintf("%s_%s", uid, v.Code)
}

// helper: discovery payload for one variable
func discoveryPayload(name, stateTopic, uniqueID string, v sensor.Variable) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", v.Name),
		keyJSONAttributesTopic: stateTopic,
	}
	if u, ok := haUnits[v.Unit]; ok {
		payload[keyUnitOfMeasurement] = u.unit
		payload[keyDeviceClass] = u.deviceClass
	} else if v.Unit != "" {
		payload[keyUnitOfMeasurement] = v.Unit
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

func (m *MQTTOutput) publishJSON(topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.PublishRaw(topic, b, retained)
}
