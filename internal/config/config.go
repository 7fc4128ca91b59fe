// Package config loads the teleoperation harness configuration.
// Sources are layered: defaults, then a YAML file, then environment
// variables (optionally read from a .env file). Command line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/teleop-linksim/internal/logging"
	"github.com/signalsfoundry/teleop-linksim/internal/observability"
	"github.com/signalsfoundry/teleop-linksim/netem"
	"github.com/signalsfoundry/teleop-linksim/operator"
	"github.com/signalsfoundry/teleop-linksim/robot"
	"github.com/signalsfoundry/teleop-linksim/timectrl"
)

// ErrInvalidFormat is returned by Validate for an unsupported log format.
var ErrInvalidFormat = errors.New("config: invalid log format")

// Config is the complete harness configuration.
type Config struct {
	Link    LinkConfig                  `json:"link" yaml:"link"`
	Session SessionConfig               `json:"session" yaml:"session"`
	Log     LogConfig                   `json:"log" yaml:"log"`
	Metrics MetricsConfig               `json:"metrics" yaml:"metrics"`
	Control ControlConfig               `json:"control" yaml:"control"`
	Tracing observability.TracingConfig `json:"tracing" yaml:"tracing"`
}

// LinkConfig describes the emulated network.
type LinkConfig struct {
	// Latency is the one-way base delay.
	Latency time.Duration `json:"latency" yaml:"latency"`

	// Jitter overrides the derived jitter (10% of latency) when set.
	Jitter *time.Duration `json:"jitter,omitempty" yaml:"jitter,omitempty"`

	// PacketLoss is the drop probability; out of range values are clamped.
	PacketLoss float64 `json:"packet_loss" yaml:"packet_loss"`

	// Bandwidth in bytes per second. Zero, negative or "inf" means unbounded.
	Bandwidth Bandwidth `json:"bandwidth" yaml:"bandwidth"`

	// Seed makes loss and jitter rolls reproducible when set.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Conditions converts the link section into channel conditions.
func (l LinkConfig) Conditions() netem.Conditions {
	cond := netem.DeriveConditions(l.Latency, l.PacketLoss, l.Bandwidth.BytesPerSecond())
	if l.Jitter != nil {
		cond.Jitter = *l.Jitter
		cond = cond.Clamp()
	}
	return cond
}

// RandomFactory returns the random source factory implied by Seed.
func (l LinkConfig) RandomFactory() netem.RandomFactory {
	if l.Seed != nil {
		return netem.SeededSources(*l.Seed)
	}
	return netem.StreamSource
}

// SessionConfig describes the teleoperation session.
type SessionConfig struct {
	RobotID      string                `json:"robot_id" yaml:"robot_id"`
	RobotType    string                `json:"robot_type" yaml:"robot_type"`
	OperatorMode string                `json:"operator_mode" yaml:"operator_mode"`
	Tick         time.Duration         `json:"tick" yaml:"tick"`
	Duration     time.Duration         `json:"duration" yaml:"duration"` // zero runs until interrupted
	ClockMode    string                `json:"clock_mode" yaml:"clock_mode"`
	Script       []operator.ScriptStep `json:"script,omitempty" yaml:"script,omitempty"`
}

// TimeMode maps ClockMode onto the controller mode.
func (s SessionConfig) TimeMode() timectrl.Mode {
	if strings.EqualFold(s.ClockMode, timectrl.Accelerated.String()) {
		return timectrl.Accelerated
	}
	return timectrl.RealTime
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Logging converts the section into a logger config.
func (l LogConfig) Logging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format}
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// ControlConfig configures the gRPC control server. An empty Addr disables it.
type ControlConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Link: LinkConfig{
			Bandwidth: Bandwidth(netem.Unbounded),
		},
		Session: SessionConfig{
			RobotID:      "robot1",
			RobotType:    robot.TypeMobilePlatform,
			OperatorMode: operator.ModeSimple,
			Tick:         10 * time.Millisecond,
			ClockMode:    timectrl.RealTime.String(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Control: ControlConfig{Addr: ":50051"},
		Tracing: observability.TracingConfig{
			ServiceName: "teleop-sim",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load builds a configuration from defaults, the optional YAML file at path,
// and the environment. A .env file in the working directory is read first
// when present; it never overrides variables already set.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadDotEnv loads the given .env files, defaulting to ./.env. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromFile reads a YAML configuration on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero values left by partial files or overrides.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Session.RobotID == "" {
		c.Session.RobotID = def.Session.RobotID
	}
	if c.Session.RobotType == "" {
		c.Session.RobotType = def.Session.RobotType
	}
	if c.Session.OperatorMode == "" {
		c.Session.OperatorMode = def.Session.OperatorMode
	}
	if c.Session.Tick <= 0 {
		c.Session.Tick = def.Session.Tick
	}
	if c.Session.ClockMode == "" {
		c.Session.ClockMode = def.Session.ClockMode
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
	c.Link.Bandwidth = c.Link.Bandwidth.normalize()
}

// Validate rejects structural errors. Numeric link values are never rejected;
// the emulator clamps them.
func (c *Config) Validate() error {
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("%w: %q (valid: text, json)", ErrInvalidFormat, c.Log.Format)
	}
	if !validRobotType(c.Session.RobotType) {
		return fmt.Errorf("%w: %q (valid: %s)", robot.ErrUnknownType, c.Session.RobotType, strings.Join(robot.Types(), ", "))
	}
	switch strings.ToLower(c.Session.ClockMode) {
	case timectrl.RealTime.String(), timectrl.Accelerated.String():
	default:
		return fmt.Errorf("invalid clock mode: %s (valid: realtime, accelerated)", c.Session.ClockMode)
	}
	if c.Session.Duration < 0 {
		return fmt.Errorf("duration must be non-negative, got %v", c.Session.Duration)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample_ratio must be between 0 and 1, got %f", c.Tracing.SampleRatio)
	}
	return nil
}

func validRobotType(t string) bool {
	for _, known := range robot.Types() {
		if t == known {
			return true
		}
	}
	return false
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies environment overrides using lookup.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = f
		return nil
	}

	if err := dur("TELEOP_LATENCY", &c.Link.Latency); err != nil {
		return err
	}
	if v, ok := lookup("TELEOP_JITTER"); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("TELEOP_JITTER: %w", err)
		}
		c.Link.Jitter = &d
	}
	if err := float("TELEOP_PACKET_LOSS", &c.Link.PacketLoss); err != nil {
		return err
	}
	if v, ok := lookup("TELEOP_BANDWIDTH"); ok && v != "" {
		bw, err := ParseBandwidth(v)
		if err != nil {
			return fmt.Errorf("TELEOP_BANDWIDTH: %w", err)
		}
		c.Link.Bandwidth = bw
	}
	if v, ok := lookup("TELEOP_SEED"); ok && v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEOP_SEED: %w", err)
		}
		c.Link.Seed = &seed
	}

	str("TELEOP_ROBOT_ID", &c.Session.RobotID)
	str("TELEOP_ROBOT_TYPE", &c.Session.RobotType)
	str("TELEOP_OPERATOR_MODE", &c.Session.OperatorMode)
	str("TELEOP_CLOCK_MODE", &c.Session.ClockMode)
	if err := dur("TELEOP_TICK", &c.Session.Tick); err != nil {
		return err
	}
	if err := dur("TELEOP_DURATION", &c.Session.Duration); err != nil {
		return err
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("TELEOP_METRICS_ADDR", &c.Metrics.Addr)
	str("TELEOP_CONTROL_ADDR", &c.Control.Addr)

	if v, ok := lookup("TELEOP_TRACING_ENABLED"); ok && v != "" {
		c.Tracing.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	str("TELEOP_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("TELEOP_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	str("TELEOP_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	return float("TELEOP_TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)
}

// parseDuration accepts Go durations ("150ms") and bare seconds ("0.15").
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return netem.Seconds(secs), nil
}

// Bandwidth is a byte rate where any non-positive value means unbounded.
type Bandwidth float64

// ParseBandwidth accepts a number of bytes per second or "inf"/"unbounded".
func ParseBandwidth(v string) (Bandwidth, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "inf", "+inf", ".inf", "+.inf", "infinity", "unbounded":
		return Bandwidth(netem.Unbounded), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q", v)
	}
	return Bandwidth(f).normalize(), nil
}

// BytesPerSecond returns the rate, +Inf when unbounded.
func (b Bandwidth) BytesPerSecond() float64 {
	return float64(b.normalize())
}

func (b Bandwidth) normalize() Bandwidth {
	if math.IsNaN(float64(b)) || b <= 0 {
		return Bandwidth(netem.Unbounded)
	}
	return b
}

// UnmarshalYAML accepts numbers and the unbounded spellings.
func (b *Bandwidth) UnmarshalYAML(node *yaml.Node) error {
	bw, err := ParseBandwidth(node.Value)
	if err != nil {
		return err
	}
	*b = bw
	return nil
}

// MarshalYAML writes "inf" for an unbounded rate.
func (b Bandwidth) MarshalYAML() (any, error) {
	if math.IsInf(float64(b), 1) {
		return "inf", nil
	}
	return float64(b), nil
}

func (b Bandwidth) String() string {
	if math.IsInf(float64(b.normalize()), 1) {
		return "inf"
	}
	return strconv.FormatFloat(float64(b), 'f', -1, 64)
}
