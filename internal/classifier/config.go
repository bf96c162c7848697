// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/linuxfoundation/lfx-v2-snowball-service/pkg/errors"
)

// Config holds the static domain lists the classifier is built from.
// Deployments may extend the compiled-in defaults with a YAML override
// file; overrides add entries, they never remove defaults.
type Config struct {
	DisposableDomains []string `yaml:"disposable_domains"`
	WebmailDomains    []string `yaml:"webmail_domains"`
	RoleLocalParts    []string `yaml:"role_local_parts"`
	RolePrefixes      []string `yaml:"role_prefixes"`
}

// withDefaults returns the config with empty lists replaced by the
// compiled-in defaults.
func (c Config) withDefaults() Config {
	if len(c.DisposableDomains) == 0 {
		c.DisposableDomains = defaultDisposableDomains
	}
	if len(c.WebmailDomains) == 0 {
		c.WebmailDomains = defaultWebmailDomains
	}
	if len(c.RoleLocalParts) == 0 {
		c.RoleLocalParts = defaultRoleLocalParts
	}
	if len(c.RolePrefixes) == 0 {
		c.RolePrefixes = defaultRolePrefixes
	}
	return c
}

// LoadConfig reads a YAML override file and merges it over the defaults.
// An empty path returns the default configuration.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}.withDefaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewValidation(
			fmt.Sprintf("failed to read classifier config file %q", path), err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Config{}, errors.NewValidation(
			fmt.Sprintf("failed to parse classifier config file %q", path), err)
	}

	cfg.DisposableDomains = append(cfg.DisposableDomains, override.DisposableDomains...)
	cfg.WebmailDomains = append(cfg.WebmailDomains, override.WebmailDomains...)
	cfg.RoleLocalParts = append(cfg.RoleLocalParts, override.RoleLocalParts...)
	cfg.RolePrefixes = append(cfg.RolePrefixes, override.RolePrefixes...)

	return cfg, nil
}
