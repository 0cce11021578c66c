// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name that marks a directory as a binary plugin.
const ManifestFile = "plugin.yaml"

// APIVersion is the plugin API version this host implements. A manifest's
// requires constraint is checked against it.
const APIVersion = "1.0.0"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name       string   `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version    string   `yaml:"version" json:"version"`
	Requires   string   `yaml:"requires,omitempty" json:"requires,omitempty"`
	Executable string   `yaml:"executable" json:"executable"`
	Hooks      []string `yaml:"hooks,omitempty" json:"hooks,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest validates data against the manifest schema, then parses and
// checks it.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not semver: %w", m.Version, err)
	}

	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return fmt.Errorf("requires %q: %w", m.Requires, err)
		}
	}

	if m.Executable == "" {
		return fmt.Errorf("executable is required")
	}

	for _, h := range m.Hooks {
		if !slices.Contains(AllHooks, Hook(h)) {
			return fmt.Errorf("unknown hook %q", h)
		}
	}

	return nil
}

// Compatible reports whether the host API version satisfies the manifest's
// requires constraint. An empty constraint accepts any host.
func (m *Manifest) Compatible() (bool, error) {
	if m.Requires == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return false, fmt.Errorf("requires %q: %w", m.Requires, err)
	}
	return c.Check(semver.MustParse(APIVersion)), nil
}

// Declares reports whether the plugin implements hook. A manifest without a
// hooks list implements all of them.
func (m *Manifest) Declares(hook Hook) bool {
	return len(m.Hooks) == 0 || slices.Contains(m.Hooks, string(hook))
}
