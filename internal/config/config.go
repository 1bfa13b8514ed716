package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-yaml/yaml"
)

const defaultAPIURL = "http://localhost:8080/api"

// Config is the persisted CLI configuration, kept at
// ~/.scambus/config.yaml.
type Config struct {
	APIURL       string `yaml:"apiUrl"`
	APIKeyID     string `yaml:"apiKeyId"`
	APIKeySecret string `yaml:"apiKeySecret"`
	APIToken     string `yaml:"apiToken"`

	Trace Trace `yaml:"trace"`
}

// Trace configures optional OTLP trace export.
type Trace struct {
	Enable   bool   `yaml:"enable"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultPath returns ~/.scambus/config.yaml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".scambus", "config.yaml")
}

// Load reads a config file. A missing file is not an error: it yields
// an empty config so env vars and flags can fill the gaps.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) || path == "" {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// ResolveAPIURL applies the precedence explicit value > SCAMBUS_URL env
// > config file > default, trimming any trailing slash.
func ResolveAPIURL(explicit string, conf Config) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if env := os.Getenv("SCAMBUS_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	if conf.APIURL != "" {
		return strings.TrimRight(conf.APIURL, "/")
	}
	return defaultAPIURL
}

// ResolveCredential applies explicit value > env var > config file.
func ResolveCredential(explicit, envName, fromFile string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envName); env != "" {
		return env
	}
	return fromFile
}
