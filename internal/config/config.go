package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Motion      MotionConfig      `yaml:"motion"`
	Device      DeviceConfig      `yaml:"device"`
	Controllers ControllersConfig `yaml:"controllers"`
	Web         WebConfig         `yaml:"web"`
	UDP         UDPConfig         `yaml:"udp"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	GPIO        GPIOConfig        `yaml:"gpio"`
}

type MotionConfig struct {
	Interval time.Duration `yaml:"interval"`
	// StartPaused starts with sampling off.
	StartPaused bool `yaml:"start_paused"`
	// BiasCorrection defaults to true when omitted.
	BiasCorrection *bool `yaml:"bias_correction"`

	// Zero leaves the fusion defaults in place.
	Kp             float32       `yaml:"kp"`
	RestThreshold  float32       `yaml:"rest_threshold"`
	BiasLearnRate  float32       `yaml:"bias_learn_rate"`
	MaxSampleDelta time.Duration `yaml:"max_sample_delta"`
}

const (
	BackendIIO      = "iio"
	BackendICM20948 = "icm20948"
	BackendSim      = "sim"
	BackendNone     = "none"
)

type DeviceConfig struct {
	Backend string `yaml:"backend"`
	IIORoot string `yaml:"iio_root"`
	I2CBus  int    `yaml:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr"`

	GyroFullScaleDPS int `yaml:"gyro_full_scale_dps"`
	AccelFullScaleG  int `yaml:"accel_full_scale_g"`
	SampleRateHz     int `yaml:"sample_rate_hz"`

	Sim SimDeviceConfig `yaml:"sim"`
}

type SimDeviceConfig struct {
	Accel      bool `yaml:"accel"`
	Gyro       bool `yaml:"gyro"`
	Timestamps bool `yaml:"timestamps"`
}

type ControllersConfig struct {
	Evdev EvdevConfig           `yaml:"evdev"`
	Sim   []SimControllerConfig `yaml:"sim"`
}

type EvdevConfig struct {
	Enable bool          `yaml:"enable"`
	Dir    string        `yaml:"dir"`
	Rescan time.Duration `yaml:"rescan"`
}

type SimControllerConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Gyro       bool   `yaml:"gyro"`
	Accel      bool   `yaml:"accel"`
	Timestamps bool   `yaml:"timestamps"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type UDPConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Retain   bool          `yaml:"retain"`
	Interval time.Duration `yaml:"interval"`
}

type GPIOConfig struct {
	Enable    bool   `yaml:"enable"`
	Chip      string `yaml:"chip"`
	Line      int    `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, unknownFieldsErr(err)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var yamlLinePrefix = regexp.MustCompile(`^line \d+: `)

// unknownFieldsErr trims yaml's type errors down to the offending fields.
func unknownFieldsErr(err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return err
	}
	var unknown []string
	for _, e := range te.Errors {
		msg := yamlLinePrefix.ReplaceAllString(e, "")
		if !strings.Contains(msg, "not found in type") {
			return err
		}
		unknown = append(unknown, msg)
	}
	return fmt.Errorf("config contains unknown fields: %s", strings.Join(unknown, "; "))
}

// DefaultAndValidate fills defaults in place and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Motion.Interval <= 0 {
		cfg.Motion.Interval = 10 * time.Millisecond
	}
	if cfg.Motion.BiasCorrection == nil {
		on := true
		cfg.Motion.BiasCorrection = &on
	}
	if cfg.Motion.Kp < 0 {
		return fmt.Errorf("motion.kp must be >= 0")
	}
	if cfg.Motion.RestThreshold < 0 {
		return fmt.Errorf("motion.rest_threshold must be >= 0")
	}
	if cfg.Motion.BiasLearnRate < 0 {
		return fmt.Errorf("motion.bias_learn_rate must be >= 0")
	}
	if cfg.Motion.MaxSampleDelta < 0 {
		return fmt.Errorf("motion.max_sample_delta must be >= 0")
	}
	// Wall-clock deltas are about one interval; a smaller bound would skip
	// every integration step.
	if cfg.Motion.MaxSampleDelta == 0 {
		cfg.Motion.MaxSampleDelta = 100 * time.Millisecond
		if floor := 4 * cfg.Motion.Interval; cfg.Motion.MaxSampleDelta < floor {
			cfg.Motion.MaxSampleDelta = floor
		}
	}
	if cfg.Motion.MaxSampleDelta < cfg.Motion.Interval {
		return fmt.Errorf("motion.max_sample_delta must be >= motion.interval")
	}

	cfg.Device.Backend = strings.ToLower(strings.TrimSpace(cfg.Device.Backend))
	switch cfg.Device.Backend {
	case "":
		cfg.Device.Backend = BackendIIO
	case BackendIIO, BackendICM20948, BackendSim, BackendNone:
	default:
		return fmt.Errorf("device.backend must be one of iio, icm20948, sim, none")
	}
	if cfg.Device.Backend == BackendSim && !cfg.Device.Sim.Accel && !cfg.Device.Sim.Gyro {
		// An empty sim section means a full sim device.
		cfg.Device.Sim.Accel = true
		cfg.Device.Sim.Gyro = true
	}
	if cfg.Device.I2CBus < 0 {
		return fmt.Errorf("device.i2c_bus must be >= 0")
	}

	if cfg.Controllers.Evdev.Rescan <= 0 {
		cfg.Controllers.Evdev.Rescan = 2 * time.Second
	}
	seen := make(map[string]bool, len(cfg.Controllers.Sim))
	for i := range cfg.Controllers.Sim {
		c := &cfg.Controllers.Sim[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return fmt.Errorf("controllers.sim[%d].id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("controllers.sim[%d].id %q is duplicated", i, c.ID)
		}
		seen[c.ID] = true
		if c.Name == "" {
			c.Name = c.ID
		}
		if !c.Gyro && !c.Accel {
			return fmt.Errorf("controllers.sim[%d] must enable gyro or accel", i)
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}
	if cfg.UDP.Interval <= 0 {
		cfg.UDP.Interval = 100 * time.Millisecond
	}

	if cfg.MQTT.Enable && strings.TrimSpace(cfg.MQTT.Broker) == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "motionhub"
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "motionhub/motion"
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.MQTT.Interval <= 0 {
		cfg.MQTT.Interval = 200 * time.Millisecond
	}

	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = "gpiochip0"
	}
	if cfg.GPIO.Line < 0 {
		return fmt.Errorf("gpio.line must be >= 0")
	}
	return nil
}
