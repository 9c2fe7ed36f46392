// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config resolves runtime options: caller overrides win
// over a config file, which wins over built-in defaults. RuntimeConfig is
// immutable once resolved and is threaded explicitly through the core
// rather than held in package-level mutable state.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// Profile mirrors transport.Profile's shape without importing it, so config
// stays a leaf package; the cmd layer converts.
type Profile struct {
	Mode    string            `json:"mode,omitempty"`
	User    string            `json:"user,omitempty"`
	KeyPath string            `json:"key_path,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// RuntimeConfig is the fully resolved, immutable set of options.
type RuntimeConfig struct {
	TsimFacts           string  `json:"tsim_facts,omitempty"`
	ControllerIP        string  `json:"controller_ip,omitempty"`
	AnsibleController   bool    `json:"ansible_controller,omitempty"`
	EnableMTRFallback   bool    `json:"enable_mtr_fallback,omitempty"`
	EnableReverseTrace  bool    `json:"enable_reverse_trace,omitempty"`
	ForceForwardTrace   bool    `json:"force_forward_trace,omitempty"`
	SoftwareSimOnly     bool    `json:"software_simulation_only,omitempty"`
	VerboseLevel        int     `json:"verbose_level,omitempty"`
	SSHConfig           Profile `json:"ssh_config,omitempty"`
	SSHControllerConfig Profile `json:"ssh_controller_config,omitempty"`
}

// Defaults returns the built-in baseline: no facts directory, no
// configured controller, mtr fallback and reverse trace both enabled.
func Defaults() RuntimeConfig {
	return RuntimeConfig{
		EnableMTRFallback:  true,
		EnableReverseTrace: true,
		SSHConfig:          Profile{Mode: "standard"},
		SSHControllerConfig: Profile{Mode: "standard"},
	}
}

// fileNames are the well-known config file basenames searched for in the
// user's home directory and the current directory.
const (
	envVar        = "TRACESIM_CONFIG"
	homeFileName  = ".tracesim.hujson"
	localFileName = "tracesim.hujson"
)

// Locate walks the search order: environment-pointed path, then
// user-home well-known name, then current-directory well-known name. The
// first readable file wins; absence of all three is not an error.
func Locate() (path string, ok bool) {
	if p := os.Getenv(envVar); p != "" {
		if readable(p) {
			return p, true
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, homeFileName)
		if readable(p) {
			return p, true
		}
	}
	if readable(localFileName) {
		return localFileName, true
	}
	return "", false
}

func readable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// fileOverlay is the on-disk shape; every field is a pointer so an absent
// key in the file leaves the default in place when applyOverlay runs.
type fileOverlay struct {
	TsimFacts           *string  `json:"tsim_facts,omitempty"`
	ControllerIP        *string  `json:"controller_ip,omitempty"`
	AnsibleController   *bool    `json:"ansible_controller,omitempty"`
	EnableMTRFallback   *bool    `json:"enable_mtr_fallback,omitempty"`
	EnableReverseTrace  *bool    `json:"enable_reverse_trace,omitempty"`
	ForceForwardTrace   *bool    `json:"force_forward_trace,omitempty"`
	SoftwareSimOnly     *bool    `json:"software_simulation_only,omitempty"`
	VerboseLevel        *int     `json:"verbose_level,omitempty"`
	SSHConfig           *Profile `json:"ssh_config,omitempty"`
	SSHControllerConfig *Profile `json:"ssh_controller_config,omitempty"`
}

// LoadFile parses a hujson (JSON-with-comments) config file into an overlay
// to be merged onto the defaults.
func LoadFile(path string) (fileOverlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileOverlay{}, errors.Wrapf(err, "config: reading %s", path)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return fileOverlay{}, errors.Wrapf(err, "config: parsing %s", path)
	}
	var overlay fileOverlay
	if err := json.Unmarshal(std, &overlay); err != nil {
		return fileOverlay{}, errors.Wrapf(err, "config: decoding %s", path)
	}
	return overlay, nil
}

// Overrides carries the subset of options a caller (typically the CLI flag
// parser) explicitly set; nil/zero pointers mean "not specified".
type Overrides struct {
	TsimFacts           *string
	ControllerIP        *string
	AnsibleController   *bool
	EnableMTRFallback   *bool
	EnableReverseTrace  *bool
	ForceForwardTrace   *bool
	SoftwareSimOnly     *bool
	VerboseLevel        *int
}

// Resolve implements the full precedence chain: Overrides > file at path (if
// ok) > Defaults().
func Resolve(overrides Overrides) (RuntimeConfig, error) {
	cfg := Defaults()

	if path, ok := Locate(); ok {
		overlay, err := LoadFile(path)
		if err != nil {
			return RuntimeConfig{}, err
		}
		applyOverlay(&cfg, overlay)
	}

	applyOverrides(&cfg, overrides)
	return cfg, nil
}

func applyOverlay(cfg *RuntimeConfig, o fileOverlay) {
	if o.TsimFacts != nil {
		cfg.TsimFacts = *o.TsimFacts
	}
	if o.ControllerIP != nil {
		cfg.ControllerIP = *o.ControllerIP
	}
	if o.AnsibleController != nil {
		cfg.AnsibleController = *o.AnsibleController
	}
	if o.EnableMTRFallback != nil {
		cfg.EnableMTRFallback = *o.EnableMTRFallback
	}
	if o.EnableReverseTrace != nil {
		cfg.EnableReverseTrace = *o.EnableReverseTrace
	}
	if o.ForceForwardTrace != nil {
		cfg.ForceForwardTrace = *o.ForceForwardTrace
	}
	if o.SoftwareSimOnly != nil {
		cfg.SoftwareSimOnly = *o.SoftwareSimOnly
	}
	if o.VerboseLevel != nil {
		cfg.VerboseLevel = *o.VerboseLevel
	}
	if o.SSHConfig != nil {
		cfg.SSHConfig = *o.SSHConfig
	}
	if o.SSHControllerConfig != nil {
		cfg.SSHControllerConfig = *o.SSHControllerConfig
	}
}

func applyOverrides(cfg *RuntimeConfig, o Overrides) {
	if o.TsimFacts != nil {
		cfg.TsimFacts = *o.TsimFacts
	}
	if o.ControllerIP != nil {
		cfg.ControllerIP = *o.ControllerIP
	}
	if o.AnsibleController != nil {
		cfg.AnsibleController = *o.AnsibleController
	}
	if o.EnableMTRFallback != nil {
		cfg.EnableMTRFallback = *o.EnableMTRFallback
	}
	if o.EnableReverseTrace != nil {
		cfg.EnableReverseTrace = *o.EnableReverseTrace
	}
	if o.ForceForwardTrace != nil {
		cfg.ForceForwardTrace = *o.ForceForwardTrace
	}
	if o.SoftwareSimOnly != nil {
		cfg.SoftwareSimOnly = *o.SoftwareSimOnly
	}
	if o.VerboseLevel != nil {
		cfg.VerboseLevel = *o.VerboseLevel
	}
}
