// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads and validates the application config a page runs
// with.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/holomush/scriptkit/internal/usererr"
)

// Execution threads.
const (
	ThreadMain   = "main"
	ThreadWorker = "worker"
)

// DefaultCapabilities are granted to page scripts when the config is silent.
var DefaultCapabilities = []string{"fs.*"}

// AppConfig is the validated config. It is a plain value; copies do not
// share state except for the slices, which callers must not modify.
type AppConfig struct {
	Name            string        `koanf:"name" json:"name,omitempty" jsonschema:"description=Application name shown in status messages"`
	Packages        []string      `koanf:"packages" json:"packages,omitempty" jsonschema:"description=Packages installed from the index before scripts run"`
	Fetch           []FetchConfig `koanf:"fetch" json:"fetch,omitempty" jsonschema:"description=Files copied into the interpreter filesystem"`
	Plugins         []string      `koanf:"plugins" json:"plugins,omitempty" jsonschema:"description=User plugin references: .lua files or plugin directories"`
	ExecutionThread string        `koanf:"execution_thread" json:"execution_thread,omitempty" jsonschema:"enum=main,enum=worker,default=main"`
	IndexURL        string        `koanf:"index_url" json:"index_url,omitempty" jsonschema:"description=Base URL packages are fetched from"`
	Interpreter     string        `koanf:"interpreter" json:"interpreter,omitempty" jsonschema:"description=Bootstrap chunk run when the interpreter loads"`
	Capabilities    []string      `koanf:"capabilities" json:"capabilities,omitempty" jsonschema:"description=Capability patterns granted to page scripts"`
}

// FetchConfig describes files to copy into the interpreter filesystem.
type FetchConfig struct {
	From     string   `koanf:"from" json:"from,omitempty"`
	ToFolder string   `koanf:"to_folder" json:"to_folder,omitempty"`
	ToFile   string   `koanf:"to_file" json:"to_file,omitempty"`
	Files    []string `koanf:"files" json:"files,omitempty"`
}

// Source lists where config comes from. Later sources override earlier
// ones: file, then inline body, then changed flags.
type Source struct {
	File   string
	Inline []byte
	Flags  *pflag.FlagSet
}

// flagKeys maps CLI flags to config keys.
var flagKeys = map[string]string{
	"name":             "name",
	"package":          "packages",
	"plugin":           "plugins",
	"execution-thread": "execution_thread",
	"index-url":        "index_url",
	"interpreter":      "interpreter",
	"capability":       "capabilities",
}

// RegisterFlags adds the config override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("name", "", "application name")
	fs.StringSlice("package", nil, "package to install (repeatable)")
	fs.StringSlice("plugin", nil, "user plugin reference (repeatable)")
	fs.String("execution-thread", "", "where scripts execute: main or worker")
	fs.String("index-url", "", "package index base URL")
	fs.String("interpreter", "", "bootstrap chunk URL")
	fs.StringSlice("capability", nil, "capability granted to page scripts (repeatable)")
}

// Load reads, merges and validates config. Every failure is a BAD_CONFIG
// user error.
func Load(src Source) (AppConfig, error) {
	k := koanf.New(".")

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return AppConfig{}, usererr.BadConfig("config file %s does not exist", src.File)
			}
			return AppConfig{}, usererr.BadConfig("cannot read config file %s: %v", src.File, err)
		}
	}
	if len(src.Inline) > 0 {
		if err := k.Load(inlineProvider(src.Inline), yaml.Parser()); err != nil {
			return AppConfig{}, usererr.BadConfig("cannot parse inline config: %v", err)
		}
	}
	if src.Flags != nil {
		provider := posflag.ProviderWithFlag(src.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(src.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return AppConfig{}, usererr.BadConfig("invalid flags: %v", err)
		}
	}

	if err := ValidateMap(k.Raw()); err != nil {
		return AppConfig{}, usererr.BadConfig("invalid configuration: %s", FormatSchemaError(err))
	}

	var cfg AppConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return AppConfig{}, usererr.BadConfig("invalid configuration: %v", err)
	}
	applyDefaults(&cfg, k)

	if _, err := cfg.FetchPaths(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig, k *koanf.Koanf) {
	if cfg.ExecutionThread == "" {
		cfg.ExecutionThread = ThreadMain
	}
	if !k.Exists("capabilities") {
		cfg.Capabilities = slices.Clone(DefaultCapabilities)
	}
}

// Worker reports whether scripts run on a worker thread.
func (c AppConfig) Worker() bool {
	return c.ExecutionThread == ThreadWorker
}

// String summarizes the config for logs.
func (c AppConfig) String() string {
	return fmt.Sprintf("config(name=%q thread=%s packages=%d fetch=%d plugins=%d)",
		c.Name, c.ExecutionThread, len(c.Packages), len(c.Fetch), len(c.Plugins))
}

// inlineProvider serves a config body that is already in memory.
type inlineProvider []byte

// ReadBytes implements koanf.Provider.
func (p inlineProvider) ReadBytes() ([]byte, error) {
	return p, nil
}

// Read implements koanf.Provider.
func (p inlineProvider) Read() (map[string]any, error) {
	return nil, errors.New("inline provider does not support Read")
}
