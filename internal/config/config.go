// Package config loads objsync config from YAML. Env overrides take precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocationConfig describes one sync endpoint. Either URI or the
// individual fields may be set; a URI fills in whatever is unset.
type LocationConfig struct {
	URI       string `yaml:"uri"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Config holds resolved settings for the CLI.
type Config struct {
	Source         LocationConfig `yaml:"source"`
	Destination    LocationConfig `yaml:"destination"`
	MaxConcurrency int            `yaml:"max_concurrency"`
	MaxRetries     int            `yaml:"max_retries"`
	ForceStream    bool           `yaml:"force_stream"`
	JournalPath    string         `yaml:"journal_path"`
}

// Load reads config from XDG_CONFIG_HOME/objsync/config.yaml. Missing
// file uses defaults. Env overrides: OBJSYNC_CONFIG (alternate file),
// OBJSYNC_JOURNAL_PATH, OBJSYNC_SOURCE, OBJSYNC_DESTINATION.
func Load() (*Config, error) {
	path := filepath.Join(xdgConfigHome(), "objsync", "config.yaml")
	if v := os.Getenv("OBJSYNC_CONFIG"); v != "" {
		path = v
	}

	c := &Config{
		JournalPath: filepath.Join(xdgDataHome(), "objsync", "journal.db"),
	}

	b, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if v := os.Getenv("OBJSYNC_JOURNAL_PATH"); v != "" {
		c.JournalPath = v
	}
	if v := os.Getenv("OBJSYNC_SOURCE"); v != "" {
		c.Source = LocationConfig{URI: v}
	}
	if v := os.Getenv("OBJSYNC_DESTINATION"); v != "" {
		c.Destination = LocationConfig{URI: v}
	}

	if err := c.Source.Normalize(); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := c.Destination.Normalize(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	return c, nil
}

// Normalize parses URI (if set) into the individual fields and applies
// defaults. Explicit fields win over URI components.
func (lc *LocationConfig) Normalize() error {
	if lc.URI != "" {
		parsed, err := ParseS3URI(lc.URI)
		if err != nil {
			return err
		}
		if lc.Bucket == "" {
			lc.Bucket = parsed.Bucket
		}
		if lc.Prefix == "" {
			lc.Prefix = parsed.Prefix
		}
		if lc.Region == "" {
			lc.Region = parsed.Region
		}
		if lc.Endpoint == "" {
			lc.Endpoint = parsed.Endpoint
		}
		if parsed.PathStyle {
			lc.PathStyle = true
		}
	}
	if lc.Region == "" {
		lc.Region = "us-east-1"
	}
	return nil
}

// SameStore reports whether two locations are served by the same store
// handle: same endpoint, region and credentials scope. Locations that
// are SameStore can use server-side copies between their buckets.
func (lc LocationConfig) SameStore(other LocationConfig) bool {
	return lc.Endpoint == other.Endpoint &&
		lc.Region == other.Region &&
		lc.AccessKey == other.AccessKey &&
		lc.SecretKey == other.SecretKey
}

// ParseS3URI parses s3://bucket/prefix?region=&endpoint=&path-style=
// into a LocationConfig.
func ParseS3URI(uri string) (LocationConfig, error) {
	var lc LocationConfig

	parsed, err := url.Parse(uri)
	if err != nil {
		return lc, err
	}
	if parsed.Scheme != "s3" {
		return lc, fmt.Errorf("unsupported scheme %q (want s3://)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return lc, fmt.Errorf("missing bucket in %q", uri)
	}

	lc.URI = uri
	lc.Bucket = parsed.Host
	lc.Prefix = strings.TrimPrefix(parsed.Path, "/")

	query := parsed.Query()
	lc.Region = query.Get("region")
	lc.Endpoint = query.Get("endpoint")
	lc.PathStyle = query.Get("path-style") == "true"
	return lc, nil
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}
