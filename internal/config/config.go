package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mt4110/mvimg/internal/pair"
)

const appName = "mvimg"

type Profile struct {
	CRF    int    `yaml:"crf"`
	Preset string `yaml:"preset"`
}

type Config struct {
	WatchDirs []string `yaml:"watchDirs"`

	DestDir        string             `yaml:"destDir"`
	Concurrent     int                `yaml:"concurrent"`
	Prefix         string             `yaml:"prefix"`
	SplitSuffix    string             `yaml:"splitSuffix"`
	StemMatch      string             `yaml:"stemMatch"`
	Keywords       []string           `yaml:"keywords"`
	IgnoreKeywords []string           `yaml:"ignoreKeywords"`
	KeepTimestamps bool               `yaml:"keepTimestamps"`
	NativeRead     bool               `yaml:"nativeRead"`
	DryRun         bool               `yaml:"dryRun"`
	Notify         bool               `yaml:"notify"`
	LogFile        string             `yaml:"logFile"`
	SettleDelay    time.Duration      `yaml:"settleDelay"`
	ToolTimeout    time.Duration      `yaml:"toolTimeout"`
	FFmpegBin      string             `yaml:"ffmpegBin"`
	MagickBin      string             `yaml:"magickBin"`
	ExifToolBin    string             `yaml:"exiftoolBin"`
	ExifToolConfig string             `yaml:"exiftoolConfig"`
	CRF            int                `yaml:"crf"`
	Preset         string             `yaml:"preset"`
	GPU            bool               `yaml:"gpu"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

func NewDefault() *Config {
	cwd, _ := os.Getwd()
	defaultDest := filepath.Join(cwd, "out")
	defaultConcurrent := runtime.NumCPU() - 1
	if defaultConcurrent < 1 {
		defaultConcurrent = 1
	}

	return &Config{
		DestDir:        defaultDest,
		Concurrent:     defaultConcurrent,
		Prefix:         "MVIMG_",
		SplitSuffix:    "_01",
		StemMatch:      string(pair.PolicyAuto),
		KeepTimestamps: true,
		NativeRead:     true,
		Notify:         true,
		SettleDelay:    2 * time.Second,
		ToolTimeout:    10 * time.Minute,
		CRF:            22,
		Preset:         "faster",
	}
}

// Dir returns the directory holding config.yaml and the exiftool config.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// Path returns the location of config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (*Config, error) {
	cfg := NewDefault()

	configPath, err := Path()
	if err != nil {
		return cfg, nil // ホームディレクトリが取れなくてもデフォルトで進む
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings that would make every item fail.
func (c *Config) Validate() error {
	if _, ok := pair.ParsePolicy(c.StemMatch); !ok {
		return fmt.Errorf("invalid stemMatch %q (auto, sensitive, insensitive)", c.StemMatch)
	}
	if c.Concurrent < 1 {
		return fmt.Errorf("concurrent must be at least 1, got %d", c.Concurrent)
	}
	if c.Prefix == "" && c.DestDir == "" {
		return fmt.Errorf("an empty prefix needs an explicit destDir")
	}
	return nil
}

// ApplyProfile copies a named profile's transcode settings onto c.
func (c *Config) ApplyProfile(name string) bool {
	entry, ok := c.Profiles[name]
	if !ok {
		return false
	}
	if entry.CRF > 0 {
		c.CRF = entry.CRF
	}
	if entry.Preset != "" {
		c.Preset = entry.Preset
	}
	return true
}

// StemPolicy returns the configured matching policy.
func (c *Config) StemPolicy() pair.StemPolicy {
	p, _ := pair.ParsePolicy(c.StemMatch)
	return p
}

// ExifToolConfigPath returns the GCamera tag definition file used with exiftool.
func (c *Config) ExifToolConfigPath() string {
	if c.ExifToolConfig != "" {
		return c.ExifToolConfig
	}
	dir, err := Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName+"-exiftool.config")
	}
	return filepath.Join(dir, "exiftool.config")
}
