package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volume != DefaultVolume {
		t.Errorf("DefaultConfig().Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}
	if cfg.BackendURL != DefaultBackendURL {
		t.Errorf("DefaultConfig().BackendURL = %q, want %q", cfg.BackendURL, DefaultBackendURL)
	}
	if cfg.Repeat != "none" {
		t.Errorf("DefaultConfig().Repeat = %q, want none", cfg.Repeat)
	}
	if cfg.Shuffle {
		t.Error("DefaultConfig().Shuffle = true, want false")
	}
	if !cfg.AutoplayOnSelect {
		t.Error("DefaultConfig().AutoplayOnSelect = false, want true")
	}
	if filepath.Base(cfg.DownloadDir) != AppName {
		t.Errorf("DefaultConfig().DownloadDir = %q, want a %s folder", cfg.DownloadDir, AppName)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := &Config{
		BackendURL:  "https://tracks.example.com",
		Volume:      85,
		Repeat:      "all",
		Shuffle:     true,
		DownloadDir: filepath.Join(tmpDir, "music"),
	}

	if err := testCfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Volume != testCfg.Volume {
		t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, testCfg.Volume)
	}
	if loadedCfg.BackendURL != testCfg.BackendURL {
		t.Errorf("Load().BackendURL = %q, want %q", loadedCfg.BackendURL, testCfg.BackendURL)
	}
	if loadedCfg.Repeat != "all" || !loadedCfg.Shuffle {
		t.Errorf("Load() repeat/shuffle = %q/%v, want all/true", loadedCfg.Repeat, loadedCfg.Shuffle)
	}
	if loadedCfg.DownloadDir != testCfg.DownloadDir {
		t.Errorf("Load().DownloadDir = %q, want %q", loadedCfg.DownloadDir, testCfg.DownloadDir)
	}
	if loadedCfg.AutoplayOnSelect {
		t.Error("Load().AutoplayOnSelect = true, want the saved false")
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with non-existent file returned Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}
	if cfg.BackendURL != DefaultBackendURL {
		t.Errorf("Load() with non-existent file returned BackendURL = %q", cfg.BackendURL)
	}
}

func TestVolumeValidation(t *testing.T) {
	tests := []struct {
		name           string
		inputVolume    int
		expectedVolume int
	}{
		{"valid volume 50", 50, 50},
		{"valid volume 0", 0, 0},
		{"valid volume 100", 100, 100},
		{"negative volume", -10, 0},
		{"volume over 100", 150, 100},
		{"volume way over 100", 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("HOME", tmpDir)

			testCfg := &Config{Volume: tt.inputVolume}
			if err := testCfg.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loadedCfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if loadedCfg.Volume != tt.expectedVolume {
				t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, tt.expectedVolume)
			}
		})
	}
}

func TestRepeatValidation(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"none", "none"},
		{"ALL", "all"},
		{" one ", "one"},
		{"", "none"},
		{"forever", "none"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())

			if err := (&Config{Repeat: tt.input}).Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loadedCfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loadedCfg.Repeat != tt.expected {
				t.Errorf("Load().Repeat = %q, want %q", loadedCfg.Repeat, tt.expected)
			}
		})
	}
}

func TestEmptyValuesFallBackToDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	yml := []byte("backend_url: \"  \"\ndownload_dir: \"\"\nvolume: 40\n")
	_ = os.WriteFile(filepath.Join(configDir, ConfigFileName), yml, 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != DefaultBackendURL {
		t.Errorf("BackendURL = %q, want default", cfg.BackendURL)
	}
	if cfg.DownloadDir != DefaultDownloadDir() {
		t.Errorf("DownloadDir = %q, want default", cfg.DownloadDir)
	}
	if cfg.Volume != 40 {
		t.Errorf("Volume = %d, want 40", cfg.Volume)
	}
	if cfg.Theme.Background != DefaultConfig().Theme.Background {
		t.Error("missing theme should keep default colors")
	}
}

func TestBackendPrecedence(t *testing.T) {
	cfg := &Config{BackendURL: "http://from-config"}

	t.Setenv(BackendEnv, "")
	if got := cfg.Backend(""); got != "http://from-config" {
		t.Errorf("Backend() = %q, want config value", got)
	}

	t.Setenv(BackendEnv, "http://from-env")
	if got := cfg.Backend(""); got != "http://from-env" {
		t.Errorf("Backend() = %q, want env value", got)
	}
	if got := cfg.Backend("http://from-flag"); got != "http://from-flag" {
		t.Errorf("Backend() = %q, want flag value", got)
	}

	t.Setenv(BackendEnv, "")
	if got := (&Config{}).Backend(""); got != DefaultBackendURL {
		t.Errorf("Backend() = %q, want default", got)
	}
}

func TestThemeDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Theme.Background != "#1a1b25" {
		t.Errorf("Theme.Background = %q, want %q", cfg.Theme.Background, "#1a1b25")
	}
	if cfg.Theme.Highlight != "#ff9d65" {
		t.Errorf("Theme.Highlight = %q, want %q", cfg.Theme.Highlight, "#ff9d65")
	}
	if cfg.Theme.ErrorForeground != "#ff5f5f" {
		t.Errorf("Theme.ErrorForeground = %q, want %q", cfg.Theme.ErrorForeground, "#ff5f5f")
	}
}

func TestThemePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := &Config{
		Volume: 70,
		Theme: Theme{
			Background: "black",
			Foreground: "yellow",
			Borders:    "blue",
			Highlight:  "red",
		},
	}

	if err := testCfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Theme.Background != "black" {
		t.Errorf("Theme.Background = %q, want %q", loadedCfg.Theme.Background, "black")
	}
	if loadedCfg.Theme.Highlight != "red" {
		t.Errorf("Theme.Highlight = %q, want %q", loadedCfg.Theme.Highlight, "red")
	}
}

func TestToggleFavorite(t *testing.T) {
	tests := []struct {
		name              string
		initialFavorites  []string
		key               string
		expectedFavorites []string
	}{
		{"add to empty list", []string{}, "abc", []string{"abc"}},
		{"add to existing list", []string{"xyz"}, "abc", []string{"xyz", "abc"}},
		{"remove from middle", []string{"a", "b", "c"}, "b", []string{"a", "c"}},
		{"remove only item", []string{"a"}, "a", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Favorites: slices.Clone(tt.initialFavorites)}

			cfg.ToggleFavorite(tt.key)

			if !slices.Equal(cfg.Favorites, tt.expectedFavorites) {
				t.Errorf("ToggleFavorite(%q) = %v, want %v", tt.key, cfg.Favorites, tt.expectedFavorites)
			}
			if cfg.IsFavorite(tt.key) == slices.Contains(tt.initialFavorites, tt.key) {
				t.Errorf("IsFavorite(%q) did not flip", tt.key)
			}
		})
	}
}

func TestFavoritesPersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := DefaultConfig()
	testCfg.Favorites = []string{"abc", "https://example.com/watch?v=1"}

	if err := testCfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !slices.Equal(loadedCfg.Favorites, testCfg.Favorites) {
		t.Errorf("Load().Favorites = %v, want %v", loadedCfg.Favorites, testCfg.Favorites)
	}
}

func TestGetColor(t *testing.T) {
	for _, colorStr := range []string{"", "default"} {
		if result := GetColor(colorStr); result != 0 {
			t.Errorf("GetColor(%q) = %v, want ColorDefault (0)", colorStr, result)
		}
	}
	if GetColor("#ff0000") == 0 {
		t.Error("GetColor(#ff0000) returned ColorDefault")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	configPath := filepath.Join(configDir, ConfigFileName)

	_ = os.WriteFile(configPath, []byte("this is not: valid: yaml: ["), 0644)

	cfg, err := Load()
	if err == nil {
		t.Error("Load() should report invalid YAML")
	}
	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with invalid YAML returned Volume = %d, want default %d", cfg.Volume, DefaultVolume)
	}
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("GetConfigPath() = %q, want absolute path", path)
	}
}
