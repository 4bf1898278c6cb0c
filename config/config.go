// Package config holds the settings of an attribution run, unmarshalled
// by viper from a settings file, ATTRIB_* environment variables and the
// command line (see: /cmd/attrib)
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/openfluke/attrib/device"
	"github.com/openfluke/attrib/saliency"
	"github.com/openfluke/attrib/seq"
)

// StoreConfig selects where finished runs are persisted.
type StoreConfig struct {
	// "memory" or "sqlite"
	Kind string `mapstructure:"kind"`
	// sqlite database file
	Path string `mapstructure:"path"`
}

// ModelConfig points at the trained network.
type ModelConfig struct {
	// architecture JSON, optionally with embedded weights
	Arch string `mapstructure:"arch"`
	// safetensors file overriding the embedded weights
	Weights string `mapstructure:"weights"`
}

// ProgressConfig controls progress reporting.
type ProgressConfig struct {
	// endpoint receiving JSON progress events; empty disables it
	URL string `mapstructure:"url"`
	// suppress console progress
	Quiet bool `mapstructure:"quiet"`
}

// Config is the root-level settings struct.
type Config struct {
	Method     string `mapstructure:"method"`
	Device     string `mapstructure:"device"`
	BatchSize  int    `mapstructure:"batch-size"`
	Reference  string `mapstructure:"reference"`
	AbsValue   bool   `mapstructure:"abs-value"`
	Copy       bool   `mapstructure:"copy"`
	ISMVariant string `mapstructure:"ism-variant"`

	// output element attributed by gradient methods, -1 for the sum
	Target  int   `mapstructure:"target"`
	Samples int   `mapstructure:"samples"`
	Steps   int   `mapstructure:"steps"`
	Seed    int64 `mapstructure:"seed"`

	Alphabet string `mapstructure:"alphabet"`
	// fixed encoding length; 0 uses the longest sequence
	MaxLen int    `mapstructure:"max-len"`
	Align  string `mapstructure:"align"`

	Store    StoreConfig    `mapstructure:"store"`
	Model    ModelConfig    `mapstructure:"model"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// New returns a viper instance carrying the defaults and reading ATTRIB_*
// environment variables. Nested keys map to ATTRIB_STORE_KIND and so on.
func New() *viper.Viper {
	v := viper.New()
	def := saliency.DefaultOptions()
	v.SetDefault("method", string(def.Method))
	v.SetDefault("device", device.Local.String())
	v.SetDefault("batch-size", def.BatchSize)
	v.SetDefault("reference", string(def.Reference))
	v.SetDefault("abs-value", false)
	v.SetDefault("copy", false)
	v.SetDefault("ism-variant", saliency.ISMNaive)
	v.SetDefault("target", def.Target)
	v.SetDefault("samples", def.Samples)
	v.SetDefault("steps", def.Steps)
	v.SetDefault("seed", 0)
	v.SetDefault("alphabet", seq.DNA.Name)
	v.SetDefault("max-len", 0)
	v.SetDefault("align", "start")
	v.SetDefault("store.kind", "memory")
	v.SetDefault("store.path", "attrib.db")
	v.SetDefault("model.arch", "")
	v.SetDefault("model.weights", "")
	v.SetDefault("progress.url", "")
	v.SetDefault("progress.quiet", false)

	v.SetEnvPrefix("ATTRIB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional settings file into v and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unable to decode settings: %w", err)
	}
	return c, nil
}

// Options converts the settings into saliency options, parsing every enum.
func (c Config) Options() (saliency.Options, error) {
	method, err := saliency.ParseMethod(c.Method)
	if err != nil {
		return saliency.Options{}, err
	}
	placement, err := device.Parse(c.Device)
	if err != nil {
		return saliency.Options{}, err
	}
	ref, err := saliency.ParseReference(c.Reference)
	if err != nil {
		return saliency.Options{}, err
	}
	opts := saliency.Options{
		Method:     method,
		Reference:  ref,
		Device:     placement,
		BatchSize:  c.BatchSize,
		AbsValue:   c.AbsValue,
		ISMVariant: c.ISMVariant,
		Target:     c.Target,
		Samples:    c.Samples,
		Steps:      c.Steps,
		Seed:       c.Seed,
	}
	return opts, opts.Validate()
}

// Validate fails on any setting that would otherwise fail after the model
// is loaded.
func (c Config) Validate() error {
	if _, err := c.Options(); err != nil {
		return err
	}
	if _, err := seq.AlphabetByName(c.Alphabet); err != nil {
		return err
	}
	if _, err := seq.ParseAlign(c.Align); err != nil {
		return err
	}
	if c.MaxLen < 0 {
		return fmt.Errorf("max-len must not be negative, got %d", c.MaxLen)
	}
	switch c.Store.Kind {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite store needs a path")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Kind)
	}
	return nil
}
