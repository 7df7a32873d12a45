// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// Serial link to the AS5600 board
	SerialPort        string // empty: read PortFile
	PortFile          string
	SerialBaudRate    int
	SerialReadTimeout int // milliseconds
	SerialSettle      int // milliseconds to wait after opening (board reset)

	// Calibration
	CalibrationFile           string
	CalibrationSamples        int
	CalibrationSampleInterval int // milliseconds
	CalibrationDedup          bool

	// Pipeline timing
	SamplerDelay       int // milliseconds between background reads
	FilterWindow       int
	ReadInterval       int // milliseconds between foreground polls
	ConsoleLogInterval int // milliseconds

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicJoints string
	TopicRaw    string

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		PortFile:          "leader_port.txt",
		SerialBaudRate:    115200,
		SerialReadTimeout: 1000,
		SerialSettle:      2000,

		CalibrationFile:           "Calibration_Data.txt",
		CalibrationSamples:        10,
		CalibrationSampleInterval: 50,

		SamplerDelay:       10,
		FilterWindow:       10,
		ReadInterval:       10,
		ConsoleLogInterval: 1000,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "leader-arm-producer",
		MQTTClientIDConsole:  "leader-arm-console",
		MQTTClientIDWeb:      "leader-arm-web",
		MQTTClientIDDisplay:  "leader-arm-display",

		TopicJoints: "leader/joints",
		TopicRaw:    "leader/raw",

		WebServerPort: 8080,

		DisplayI2CBus:         "",
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,
	}
}

// Load reads the configuration file and returns a Config struct. Keys not in
// the file keep their Default values.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r. Empty lines and lines starting with '#'
// are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads configPath, falling back to Default when the file does
// not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(configPath)
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "PORT_FILE":
		c.PortFile = value
	case "SERIAL_BAUD_RATE":
		return setPositive(&c.SerialBaudRate, key, value)
	case "SERIAL_READ_TIMEOUT_MS":
		return setNonNegative(&c.SerialReadTimeout, key, value)
	case "SERIAL_SETTLE_MS":
		return setNonNegative(&c.SerialSettle, key, value)

	// Calibration
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "CALIBRATION_SAMPLES":
		return setPositive(&c.CalibrationSamples, key, value)
	case "CALIBRATION_SAMPLE_INTERVAL_MS":
		return setPositive(&c.CalibrationSampleInterval, key, value)
	case "CALIBRATION_DEDUP":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.CalibrationDedup = b

	// Timing
	case "SAMPLER_DELAY_MS":
		return setPositive(&c.SamplerDelay, key, value)
	case "FILTER_WINDOW":
		return setPositive(&c.FilterWindow, key, value)
	case "READ_INTERVAL_MS":
		return setPositive(&c.ReadInterval, key, value)
	case "CONSOLE_LOG_INTERVAL_MS":
		return setPositive(&c.ConsoleLogInterval, key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_JOINTS":
		c.TopicJoints = value
	case "TOPIC_RAW":
		c.TopicRaw = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port <= 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL_MS":
		return setPositive(&c.DisplayUpdateInterval, key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setPositive(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", key, v)
	}
	*dst = v
	return nil
}

func setNonNegative(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 {
		return fmt.Errorf("%s must not be negative, got %d", key, v)
	}
	*dst = v
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.SerialPort == "" && c.PortFile == "" {
		return fmt.Errorf("SERIAL_PORT or PORT_FILE is required")
	}
	if c.CalibrationFile == "" {
		return fmt.Errorf("CALIBRATION_FILE is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicJoints == "" {
		return fmt.Errorf("TOPIC_JOINTS is required")
	}
	return nil
}

// Millis converts a millisecond config value to a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
