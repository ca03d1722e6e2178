package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

const (
	configType = "yaml"
	tagName    = "yaml"
)

// load layers the YAML file over Default() and the DATABANK_* environment
// over both. Every key is seeded from Default() so that AutomaticEnv can
// override keys the file does not mention.
func load(path string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigType(configType)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)

	seed, err := yaml.Marshal(Default())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "encode default configuration", err)
	}
	if err := v.ReadConfig(bytes.NewReader(seed)); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "read default configuration", err)
	}

	if path != "" {
		if err := mergeFile(v, path, required); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	err = v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = tagName
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "could not decode configuration", err)
	}

	cfg.normalize()
	return cfg, nil
}

func mergeFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return errs.Wrap(errs.ErrKindInvalidInput, "could not read config file "+path, err)
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "could not parse config file "+path, err)
	}
	return nil
}

// normalize tidies values that arrive as free text from the environment.
func (c *Config) normalize() {
	c.Database.Driver = database.Driver(strings.ToLower(strings.TrimSpace(string(c.Database.Driver))))

	origins := make([]string, 0, len(c.Server.CORSOrigins))
	for _, o := range c.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.CORSOrigins = origins
}
