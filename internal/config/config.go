package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "trackdeck"
	AppTagline      = "Terminal track player"
	AppDescription  = "Search, play and download tracks from a trackdeck backend in the terminal"
	AppProjectURL   = "https://github.com/glebovdev/trackdeck"
	AppProjectShort = "github.com/glebovdev/trackdeck"

	ConfigDir         = ".config/trackdeck"
	ConfigFileName    = "config.yml"
	DefaultBackendURL = "http://localhost:8000"
	BackendEnv        = "TRACKDECK_BACKEND"
	DefaultVolume     = 70
	MinVolume         = 0
	MaxVolume         = 100
)

var validRepeatModes = []string{"none", "all", "one"}

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/trackdeck/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background            string `yaml:"background"`
	Foreground            string `yaml:"foreground"`
	Borders               string `yaml:"borders"`
	Highlight             string `yaml:"highlight"`
	MutedVolume           string `yaml:"muted_volume"`
	HeaderBackground      string `yaml:"header_background"`
	QueueHeaderBackground string `yaml:"queue_header_background"`
	QueueHeaderForeground string `yaml:"queue_header_foreground"`
	HelpBackground        string `yaml:"help_background"`
	HelpForeground        string `yaml:"help_foreground"`
	HelpHotkey            string `yaml:"help_hotkey"`
	ErrorForeground       string `yaml:"error_foreground"`
	ModalBackground       string `yaml:"modal_background"`
}

type Config struct {
	BackendURL       string   `yaml:"backend_url"`
	Volume           int      `yaml:"volume"`
	Repeat           string   `yaml:"repeat"`
	Shuffle          bool     `yaml:"shuffle"`
	DownloadDir      string   `yaml:"download_dir"`
	AutoplayOnSelect bool     `yaml:"autoplay_on_select"`
	Favorites        []string `yaml:"favorites"`
	Theme            Theme    `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Volume = ClampVolume(c.Volume)
	c.Repeat = strings.ToLower(strings.TrimSpace(c.Repeat))
	if !slices.Contains(validRepeatModes, c.Repeat) {
		c.Repeat = "none"
	}
	c.BackendURL = strings.TrimSpace(c.BackendURL)
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		c.DownloadDir = DefaultDownloadDir()
	}
}

// Backend returns the backend URL to use: the flag value when set, then the
// TRACKDECK_BACKEND environment variable, then the config file.
func (c *Config) Backend(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(BackendEnv)); v != "" {
		return v
	}
	if c.BackendURL != "" {
		return c.BackendURL
	}
	return DefaultBackendURL
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

// DefaultDownloadDir is a trackdeck folder inside the user's music directory.
func DefaultDownloadDir() string {
	return filepath.Join(xdg.UserDirs.Music, AppName)
}

func DefaultConfig() *Config {
	return &Config{
		BackendURL:       DefaultBackendURL,
		Volume:           DefaultVolume,
		Repeat:           "none",
		Shuffle:          false,
		DownloadDir:      DefaultDownloadDir(),
		AutoplayOnSelect: true,
		Favorites:        []string{},
		Theme: Theme{
			Background:            "#1a1b25",
			Foreground:            "#a3aacb",
			Borders:               "#40445b",
			Highlight:             "#ff9d65",
			MutedVolume:           "#fe0702",
			HeaderBackground:      "#473533",
			QueueHeaderBackground: "#3a3d4f",
			QueueHeaderForeground: "#c8d0e8",
			HelpBackground:        "#322f45",
			HelpForeground:        "#9aa3c6",
			HelpHotkey:            "#ff9d65",
			ErrorForeground:       "#ff5f5f",
			ModalBackground:       "#282a36",
		},
	}
}

// IsFavorite reports whether the track key is marked as a favorite.
func (c *Config) IsFavorite(key string) bool {
	return slices.Contains(c.Favorites, key)
}

// ToggleFavorite adds or removes a track key from the favorites.
func (c *Config) ToggleFavorite(key string) {
	if i := slices.Index(c.Favorites, key); i >= 0 {
		c.Favorites = slices.Delete(c.Favorites, i, i+1)
		return
	}
	c.Favorites = append(c.Favorites, key)
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
