// Package app holds the static per-app metadata the slave loads at startup:
// the manifest describing what to run and the profile tuning how to run it.
package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultIdleTimeout applies when a profile does not set idle_timeout.
const DefaultIdleTimeout = 600 * time.Second

// ComponentDescriptor selects a registered factory by type name and carries
// its construction arguments.
type ComponentDescriptor struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args"`
}

// Manifest is the immutable description of an app.
type Manifest struct {
	Name    string              `json:"name"`
	Sandbox ComponentDescriptor `json:"sandbox"`
}

// Profile is the immutable runtime tuning of an app.
type Profile struct {
	Name        string
	IdleTimeout time.Duration
	Isolate     ComponentDescriptor
}

type profileFile struct {
	IdleTimeout float64             `json:"idle_timeout"`
	Isolate     ComponentDescriptor `json:"isolate"`
}

// LoadManifest reads <runtimePath>/manifests/<name>.json.
func LoadManifest(runtimePath, name string) (*Manifest, error) {
	path := filepath.Join(runtimePath, "manifests", name+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", name, err)
	}

	if m.Name == "" {
		m.Name = name
	}
	if m.Sandbox.Type == "" {
		return nil, fmt.Errorf("manifest for %s does not select a sandbox type", name)
	}

	return &m, nil
}

// LoadProfile reads <runtimePath>/profiles/<name>.json. idle_timeout is
// given in seconds.
func LoadProfile(runtimePath, name string) (*Profile, error) {
	path := filepath.Join(runtimePath, "profiles", name+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", name, err)
	}

	var f profileFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", name, err)
	}

	p := &Profile{
		Name:        name,
		IdleTimeout: DefaultIdleTimeout,
		Isolate:     f.Isolate,
	}
	if f.IdleTimeout > 0 {
		p.IdleTimeout = time.Duration(f.IdleTimeout * float64(time.Second))
	}

	return p, nil
}

// SpoolDir is the working directory handed to the sandbox.
func SpoolDir(spoolPath, appName string) string {
	return filepath.Join(spoolPath, appName)
}
