// Package config holds the command's layered configuration.
//
// Precedence, lowest first: Defaults, the TOML file, then flags and
// environment variables (applied by the command through Overrides).
package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/openbindings/collapsecheck"
	"github.com/openbindings/collapsecheck/internal/logging"
)

// EnvPrefix prefixes every environment variable the command reads.
const EnvPrefix = "COLLAPSECHECK_"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// KeywordsConfig is the [keywords] table: the document keys the verifier reads.
type KeywordsConfig struct {
	Definitions string `toml:"definitions"`
	RefPrefix   string `toml:"ref_prefix"`
	Reduced     string `toml:"reduced"`
	Collapsed   string `toml:"collapsed"`
}

// OutputConfig is the [output] table.
type OutputConfig struct {
	Format string `toml:"format"`
	Color  bool   `toml:"color"`
}

// LogConfig is the [log] table. Level is one of logging.Levels.
type LogConfig struct {
	Level string `toml:"level"`
}

// Config is the complete command configuration.
type Config struct {
	Keywords KeywordsConfig `toml:"keywords"`
	Output   OutputConfig   `toml:"output"`
	Log      LogConfig      `toml:"log"`
}

// Defaults returns the configuration used when nothing else is given.
func Defaults() Config {
	kw := collapsecheck.DefaultKeywords()
	return Config{
		Keywords: KeywordsConfig{
			Definitions: kw.Definitions,
			RefPrefix:   kw.RefPrefix,
			Reduced:     kw.Reduced,
			Collapsed:   kw.Collapsed,
		},
		Output: OutputConfig{Format: FormatText},
		Log:    LogConfig{Level: "warn"},
	}
}

// Load reads the TOML file at path on fs over base. Keys absent from the
// file keep their value from base.
func Load(fs afero.Fs, path string, base Config) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read config file '%s'", path)
	}
	return Parse(data, base)
}

// Parse decodes TOML over base. Unknown keys are rejected.
func Parse(data []byte, base Config) (Config, error) {
	cfg := base
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return base, errors.Wrap(err, "failed to parse TOML")
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files on fs into the
// process environment without overriding variables that are already set.
// Missing files are skipped.
func LoadDotEnv(fs afero.Fs, paths ...string) error {
	for _, p := range paths {
		f, err := fs.Open(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "failed to open %s", p)
		}
		vars, err := godotenv.Parse(f)
		_ = f.Close()
		if err != nil {
			return errors.Wrapf(err, "failed to load %s", p)
		}
		for k, v := range vars {
			if _, ok := os.LookupEnv(k); ok {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return errors.Wrapf(err, "failed to set %s", k)
			}
		}
	}
	return nil
}

// Overrides carries values set explicitly on the command line or through
// the environment. Nil fields leave the configuration untouched.
type Overrides struct {
	Format      *string
	Color       *bool
	LogLevel    *string
	Definitions *string
	RefPrefix   *string
	Reduced     *string
	Collapsed   *string
}

// Apply returns cfg with every non-nil override set.
func (o Overrides) Apply(cfg Config) Config {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&cfg.Output.Format, o.Format)
	set(&cfg.Log.Level, o.LogLevel)
	set(&cfg.Keywords.Definitions, o.Definitions)
	set(&cfg.Keywords.RefPrefix, o.RefPrefix)
	set(&cfg.Keywords.Reduced, o.Reduced)
	set(&cfg.Keywords.Collapsed, o.Collapsed)
	if o.Color != nil {
		cfg.Output.Color = *o.Color
	}
	return cfg
}

// CollapseKeywords converts the keyword section.
func (c Config) CollapseKeywords() collapsecheck.Keywords {
	return collapsecheck.Keywords{
		Definitions: c.Keywords.Definitions,
		RefPrefix:   c.Keywords.RefPrefix,
		Reduced:     c.Keywords.Reduced,
		Collapsed:   c.Keywords.Collapsed,
	}
}

// Validate checks the final configuration.
func (c Config) Validate() error {
	var problems []string
	switch c.Output.Format {
	case FormatText, FormatJSON:
	default:
		problems = append(problems, fmt.Sprintf("output.format: must be %q or %q (got %q)", FormatText, FormatJSON, c.Output.Format))
	}
	if !slices.Contains(logging.Levels, c.Log.Level) {
		problems = append(problems, fmt.Sprintf("log.level: must be one of %v (got %q)", logging.Levels, c.Log.Level))
	}
	if err := c.CollapseKeywords().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
