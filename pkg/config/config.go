package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputSerial  = "serial"
	OutputModbus  = "modbus"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

type ModbusConfig struct {
	URL        string `json:"url" yaml:"url"`
	MaxClients uint   `json:"max_clients" yaml:"max_clients"`
	TimeoutMs  int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type OutputConfig struct {
	Type       string        `json:"type" yaml:"type"`
	IntervalMs int           `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Serial     *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	Modbus     *ModbusConfig `json:"modbus,omitempty" yaml:"modbus,omitempty"`
}

// HX711Config holds the wiring and calibration of the load cell.
type HX711Config struct {
	DataPin            int    `json:"data_pin" yaml:"data_pin"`
	ClockPin           int    `json:"clock_pin" yaml:"clock_pin"`
	CalibrationOffset  int64  `json:"calibration_offset" yaml:"calibration_offset"`
	CalibrationDivisor int64  `json:"calibration_divisor" yaml:"calibration_divisor"`
	ReadTimeoutMs      int    `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	WeightCode         string `json:"weight_code,omitempty" yaml:"weight_code,omitempty"`
	WeightUUID         string `json:"weight_uuid,omitempty" yaml:"weight_uuid,omitempty"`
	RawCode            string `json:"raw_code,omitempty" yaml:"raw_code,omitempty"`
	RawUUID            string `json:"raw_uuid,omitempty" yaml:"raw_uuid,omitempty"`
}

type SimulationConfig struct {
	WeightKg    float64 `json:"weight_kg" yaml:"weight_kg"`
	NoiseCounts float64 `json:"noise_counts" yaml:"noise_counts"`
	Seed        int64   `json:"seed" yaml:"seed"`
}

type Config struct {
	HX711      HX711Config      `json:"hx711" yaml:"hx711"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Outputs    []OutputConfig   `json:"outputs" yaml:"outputs"`
	SensorType string           `json:"sensor_type" yaml:"sensor_type"`
	IntervalMs int              `json:"interval_ms" yaml:"interval_ms"`
	Debug      bool             `json:"debug" yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		HX711: HX711Config{
			DataPin:            5,
			ClockPin:           6,
			CalibrationOffset:  0,
			CalibrationDivisor: 1,
			ReadTimeoutMs:      500,
		},
		Simulation: SimulationConfig{WeightKg: 1.0, NoiseCounts: 20, Seed: 1},
		Outputs:    []OutputConfig{{Type: OutputConsole, IntervalMs: 10000}},
		SensorType: SensorReal,
		IntervalMs: 10000,
	}
}

// LoadFromFlags loads configuration from the command line of the process.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration from defaults, an optional JSON or YAML
// file, environment variables (optionally read from a .env file) and args.
// Later sources override earlier ones.
func Load(args []string) (Config, error) {
	fset := flag.NewFlagSet("hx711-to-mqtt", flag.ContinueOnError)
	cfgPath := fset.String("config", "", "Path to JSON or YAML config file")
	envPath := fset.String("env-file", ".env", "Path to .env file with overrides")
	flagDataPin := fset.String("data-pin", "", "HX711 data (DOUT) GPIO number")
	flagClockPin := fset.String("clock-pin", "", "HX711 clock (PD_SCK) GPIO number")
	flagOffset := fset.String("offset", "", "Load cell calibration offset (raw counts)")
	flagDivisor := fset.String("divisor", "", "Load cell calibration divisor (counts per kg)")
	flagOutputs := fset.String("outputs", "", "Comma-separated outputs (console,mqtt,serial,modbus)")
	flagOutputIntervals := fset.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fset.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fset.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fset.String("mqtt-pass", "", "MQTT password")
	flagClientID := fset.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fset.String("mqtt-topic", "", "MQTT state topic")
	flagSerialPort := fset.String("serial-port", "", "Serial port for the serial output")
	flagModbusURL := fset.String("modbus-url", "", "Listen URL for the modbus output (tcp://host:port)")
	flagSensorType := fset.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fset.Int("interval-ms", -1, "Measurement interval in ms")
	flagDebug := fset.Bool("debug", false, "Enable debug logging")

	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load env file: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	if *flagDataPin != "" {
		v, err := parseIntOrHex(*flagDataPin)
		if err != nil {
			return cfg, fmt.Errorf("data-pin: %w", err)
		}
		cfg.HX711.DataPin = v
	}
	if *flagClockPin != "" {
		v, err := parseIntOrHex(*flagClockPin)
		if err != nil {
			return cfg, fmt.Errorf("clock-pin: %w", err)
		}
		cfg.HX711.ClockPin = v
	}
	if *flagOffset != "" {
		v, err := parseInt64OrHex(*flagOffset)
		if err != nil {
			return cfg, fmt.Errorf("offset: %w", err)
		}
		cfg.HX711.CalibrationOffset = v
	}
	if *flagDivisor != "" {
		v, err := parseInt64OrHex(*flagDivisor)
		if err != nil {
			return cfg, fmt.Errorf("divisor: %w", err)
		}
		cfg.HX711.CalibrationDivisor = v
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p), IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		for _, p := range parseCSV(*flagOutputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				return cfg, fmt.Errorf("output-intervals: invalid entry %q", p)
			}
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return cfg, fmt.Errorf("output-intervals: %w", err)
			}
			for i := range cfg.Outputs {
				if cfg.Outputs[i].Type == strings.TrimSpace(kv[0]) {
					cfg.Outputs[i].IntervalMs = v
				}
			}
		}
	}
	// mqtt flags apply to every mqtt output; one is created if missing
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
		}
		ensureOutput(&cfg, OutputMQTT)
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
			}
		}
	}
	if *flagSerialPort != "" {
		out := ensureOutput(&cfg, OutputSerial)
		if out.Serial == nil {
			out.Serial = &SerialConfig{}
		}
		out.Serial.Port = *flagSerialPort
	}
	if *flagModbusURL != "" {
		out := ensureOutput(&cfg, OutputModbus)
		if out.Modbus == nil {
			out.Modbus = &ModbusConfig{}
		}
		out.Modbus.URL = *flagModbusURL
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagDebug {
		cfg.Debug = true
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overrides cfg from HX711_* and MQTT_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"HX711_DATA_PIN", &cfg.HX711.DataPin},
		{"HX711_CLOCK_PIN", &cfg.HX711.ClockPin},
		{"HX711_INTERVAL_MS", &cfg.IntervalMs},
	}
	for _, e := range ints {
		if v, ok := lookup(e.key); ok && v != "" {
			n, err := parseIntOrHex(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	int64s := []struct {
		key string
		dst *int64
	}{
		{"HX711_OFFSET", &cfg.HX711.CalibrationOffset},
		{"HX711_DIVISOR", &cfg.HX711.CalibrationDivisor},
	}
	for _, e := range int64s {
		if v, ok := lookup(e.key); ok && v != "" {
			n, err := parseInt64OrHex(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	if v, ok := lookup("HX711_SENSOR_TYPE"); ok && v != "" {
		cfg.SensorType = v
	}
	for i := range cfg.Outputs {
		m := cfg.Outputs[i].MQTT
		if cfg.Outputs[i].Type != OutputMQTT || m == nil {
			continue
		}
		if v, ok := lookup("MQTT_SERVER"); ok && v != "" {
			m.Server = v
		}
		if v, ok := lookup("MQTT_USERNAME"); ok && v != "" {
			m.Username = v
		}
		if v, ok := lookup("MQTT_PASSWORD"); ok && v != "" {
			m.Password = v
		}
	}
	return nil
}

// ensureOutput returns the first output of type typ, appending one if none
// exists.
func ensureOutput(cfg *Config, typ string) *OutputConfig {
	for i := range cfg.Outputs {
		if cfg.Outputs[i].Type == typ {
			return &cfg.Outputs[i]
		}
	}
	cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: typ, IntervalMs: cfg.IntervalMs})
	return &cfg.Outputs[len(cfg.Outputs)-1]
}

func (c *Config) applyDefaults() {
	for i := range c.Outputs {
		o := &c.Outputs[i]
		if o.IntervalMs == 0 {
			o.IntervalMs = c.IntervalMs
		}
		switch o.Type {
		case OutputSerial:
			if o.Serial != nil && o.Serial.BaudRate == 0 {
				o.Serial.BaudRate = 115200
			}
		case OutputModbus:
			if o.Modbus == nil {
				o.Modbus = &ModbusConfig{}
			}
			if o.Modbus.URL == "" {
				o.Modbus.URL = "tcp://0.0.0.0:5502"
			}
		}
	}
}

func (c Config) Validate() error {
	if c.HX711.DataPin < 0 || c.HX711.ClockPin < 0 {
		return errors.New("pins must be >= 0")
	}
	if c.HX711.DataPin == c.HX711.ClockPin {
		return fmt.Errorf("data and clock pin are both %d", c.HX711.DataPin)
	}
	if c.HX711.CalibrationDivisor == 0 {
		return errors.New("calibration divisor must not be 0")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputModbus:
		case OutputMQTT:
			if o.MQTT == nil || o.MQTT.Server == "" {
				return errors.New("mqtt output requires a server")
			}
		case OutputSerial:
			if o.Serial == nil || o.Serial.Port == "" {
				return errors.New("serial output requires a port")
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	v, err := parseInt64OrHex(s)
	return int(v), err
}

func parseInt64OrHex(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	u := strings.TrimPrefix(s, "-")
	if strings.HasPrefix(u, "0x") || strings.HasPrefix(u, "0X") {
		v, err := strconv.ParseInt(u[2:], 16, 64)
		if neg {
			v = -v
		}
		return v, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
