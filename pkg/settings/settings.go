// Package settings persists user preferences between sessions.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tomaslejdung/goscribble/pkg/protocol"
)

// UserSettings holds persistable user preferences
type UserSettings struct {
	Name     string  `json:"name"`
	Tool     string  `json:"tool"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
	RelayURL string  `json:"relayUrl"`
}

// Width bounds in surface pixels.
const (
	MinWidth = 1
	MaxWidth = 64
)

// DefaultSettings returns the default settings
func DefaultSettings() UserSettings {
	return UserSettings{
		Tool:     protocol.ToolPen,
		Color:    protocol.Palette[0],
		Width:    4,
		RelayURL: "ws://localhost:8080",
	}
}

// getConfigPath returns the config file path.
// Uses GOSCRIBBLE_CONFIG_DIR if set, then XDG_CONFIG_HOME, otherwise
// the platform config directory.
func getConfigPath() (string, error) {
	var configDir string

	if override := os.Getenv("GOSCRIBBLE_CONFIG_DIR"); override != "" {
		configDir = override
	} else if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "goscribble")
	} else {
		userConfigDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(userConfigDir, "goscribble")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// validate falls back to defaults for out-of-range values.
func validate(s UserSettings) UserSettings {
	defaults := DefaultSettings()
	switch s.Tool {
	case protocol.ToolPen, protocol.ToolHighlighter, protocol.ToolEraser:
	default:
		s.Tool = defaults.Tool
	}
	if !protocol.ValidColor(s.Color) {
		s.Color = defaults.Color
	}
	if s.Width < MinWidth || s.Width > MaxWidth {
		s.Width = defaults.Width
	}
	if s.RelayURL == "" {
		s.RelayURL = defaults.RelayURL
	}
	return s
}

// Load reads settings from the config file.
// Returns default settings if file doesn't exist or is invalid.
func Load() (UserSettings, error) {
	settings := DefaultSettings()

	path, err := getConfigPath()
	if err != nil {
		return settings, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist - use defaults, not an error
			return settings, nil
		}
		return settings, err
	}

	// Parse JSON, keeping defaults for missing fields
	if err := json.Unmarshal(data, &settings); err != nil {
		// Invalid JSON - use defaults
		return DefaultSettings(), nil
	}

	return validate(settings), nil
}

// Save writes settings to the config file
func Save(settings UserSettings) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Marshal with indentation for readability
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
