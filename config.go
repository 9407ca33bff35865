package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PluginSettings are the values edited in the camera settings panel
type PluginSettings struct {
	AuthToken        string  `json:"auth_token"`
	SnapshotURL      string  `json:"snapshot_url"`
	WebRTCURL        string  `json:"webrtc_url"`
	DefaultZOffset   float64 `json:"default_z_offset"`
	NozzleTipCoordsX int     `json:"nozzle_tip_coords_x"`
	NozzleTipCoordsY int     `json:"nozzle_tip_coords_y"`
	LiveUpload       bool    `json:"live_upload"`
	FlipH            bool    `json:"flip_h"`
	FlipV            bool    `json:"flip_v"`
	Rotate           bool    `json:"rotate"`
}

// TransformState returns the orientation part of the settings
func (s PluginSettings) TransformState() TransformState {
	return TransformState{FlipH: s.FlipH, FlipV: s.FlipV, Rotate: s.Rotate}
}

// NozzleMark returns the stored nozzle tip position
func (s PluginSettings) NozzleMark() NozzleMark {
	return NozzleMark{X: uint32(max(s.NozzleTipCoordsX, 0)), Y: uint32(max(s.NozzleTipCoordsY, 0))}
}

// SettingsUpdate is a partial settings change; nil fields are left untouched
type SettingsUpdate struct {
	AuthToken        *string  `json:"auth_token"`
	SnapshotURL      *string  `json:"snapshot_url"`
	WebRTCURL        *string  `json:"webrtc_url"`
	DefaultZOffset   *float64 `json:"default_z_offset"`
	NozzleTipCoordsX *int     `json:"nozzle_tip_coords_x"`
	NozzleTipCoordsY *int     `json:"nozzle_tip_coords_y"`
	LiveUpload       *bool    `json:"live_upload"`
	FlipH            *bool    `json:"flip_h"`
	FlipV            *bool    `json:"flip_v"`
	Rotate           *bool    `json:"rotate"`
}

// Config holds all configuration for the application
type Config struct {
	PollInterval    time.Duration
	DBFile          string
	WebPort         string
	CloudURL        string
	SnapshotTimeout int
	CloudTimeout    int
	APIKey          string
}

// LoadConfig loads configuration from database
func LoadConfig(bridge *CameraBridge) (*Config, error) {
	configValues, err := bridge.GetAllConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from database: %w", err)
	}

	config := &Config{
		PollInterval:    time.Duration(parseIntOr(configValues[ConfigKeyPollInterval], DefaultPollInterval)) * time.Second,
		DBFile:          bridge.dbFile,
		WebPort:         configValues[ConfigKeyWebPort],
		CloudURL:        configValues[ConfigKeyCloudURL],
		SnapshotTimeout: parseIntOr(configValues[ConfigKeySnapshotTimeout], SnapshotTimeout),
		CloudTimeout:    parseIntOr(configValues[ConfigKeyCloudTimeout], CloudTimeout),
		APIKey:          configValues[ConfigKeyAPIKey],
	}

	if config.WebPort == "" {
		config.WebPort = DefaultWebPort
	}
	if config.CloudURL == "" {
		config.CloudURL = DefaultCloudURL
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval * time.Second
	}

	return config, nil
}

// parseSettings builds plugin settings from stored key/value pairs, falling back to defaults
// for anything missing or unparsable
func parseSettings(values map[string]string) PluginSettings {
	snapshotURL, ok := values[ConfigKeySnapshotURL]
	if !ok {
		snapshotURL = DefaultSnapshotURL
	}
	webrtcURL, ok := values[ConfigKeyWebRTCURL]
	if !ok {
		webrtcURL = DefaultWebRTCURL
	}

	zOffset, err := strconv.ParseFloat(values[ConfigKeyDefaultZOffset], 64)
	if err != nil {
		zOffset = 0
	}

	return PluginSettings{
		AuthToken:        values[ConfigKeyAuthToken],
		SnapshotURL:      snapshotURL,
		WebRTCURL:        webrtcURL,
		DefaultZOffset:   zOffset,
		NozzleTipCoordsX: parseIntOr(values[ConfigKeyNozzleTipX], 10),
		NozzleTipCoordsY: parseIntOr(values[ConfigKeyNozzleTipY], 10),
		LiveUpload:       parseBool(values[ConfigKeyLiveUpload]),
		FlipH:            parseBool(values[ConfigKeyFlipH]),
		FlipV:            parseBool(values[ConfigKeyFlipV]),
		Rotate:           parseBool(values[ConfigKeyRotate]),
	}
}

// values converts an update into the key/value pairs to persist
func (u SettingsUpdate) values() map[string]string {
	out := make(map[string]string)
	if u.AuthToken != nil {
		out[ConfigKeyAuthToken] = strings.TrimSpace(*u.AuthToken)
	}
	if u.SnapshotURL != nil {
		out[ConfigKeySnapshotURL] = strings.TrimSpace(*u.SnapshotURL)
	}
	if u.WebRTCURL != nil {
		out[ConfigKeyWebRTCURL] = strings.TrimSpace(*u.WebRTCURL)
	}
	if u.DefaultZOffset != nil {
		out[ConfigKeyDefaultZOffset] = strconv.FormatFloat(*u.DefaultZOffset, 'f', -1, 64)
	}
	if u.NozzleTipCoordsX != nil {
		out[ConfigKeyNozzleTipX] = strconv.Itoa(*u.NozzleTipCoordsX)
	}
	if u.NozzleTipCoordsY != nil {
		out[ConfigKeyNozzleTipY] = strconv.Itoa(*u.NozzleTipCoordsY)
	}
	if u.LiveUpload != nil {
		out[ConfigKeyLiveUpload] = strconv.FormatBool(*u.LiveUpload)
	}
	if u.FlipH != nil {
		out[ConfigKeyFlipH] = strconv.FormatBool(*u.FlipH)
	}
	if u.FlipV != nil {
		out[ConfigKeyFlipV] = strconv.FormatBool(*u.FlipV)
	}
	if u.Rotate != nil {
		out[ConfigKeyRotate] = strconv.FormatBool(*u.Rotate)
	}
	return out
}

// validateSettingsUpdate validates settings input
func validateSettingsUpdate(u SettingsUpdate) error {
	if u.SnapshotURL != nil {
		if err := validateCameraURL(*u.SnapshotURL); err != nil {
			return fmt.Errorf("snapshot_url: %w", err)
		}
	}
	if u.WebRTCURL != nil && strings.TrimSpace(*u.WebRTCURL) != "" {
		if err := validateCameraURL(*u.WebRTCURL); err != nil {
			return fmt.Errorf("webrtc_url: %w", err)
		}
	}
	if u.NozzleTipCoordsX != nil && *u.NozzleTipCoordsX < 0 {
		return fmt.Errorf("nozzle_tip_coords_x must be non-negative")
	}
	if u.NozzleTipCoordsY != nil && *u.NozzleTipCoordsY < 0 {
		return fmt.Errorf("nozzle_tip_coords_y must be non-negative")
	}
	return nil
}

// validateCameraURL checks that a camera URL is an absolute http(s) URL
func validateCameraURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func parseIntOr(s string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return parsed
	}
	return fallback
}

// parseBool accepts the values OctoPrint style settings are stored with
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// getDBFilePath returns the database file path, checking environment variable first
func getDBFilePath() string {
	if dbPath := os.Getenv("NOZZLECAM_DB_PATH"); dbPath != "" {
		return filepath.Join(dbPath, DefaultDBFileName)
	}
	return DefaultDBFileName
}

// SeedFile is an optional YAML file used to pre-configure a fresh installation
type SeedFile struct {
	Server struct {
		Port         string `yaml:"port"`
		PollInterval int    `yaml:"poll_interval"`
		CloudURL     string `yaml:"cloud_url"`
		APIKey       string `yaml:"api_key"`
	} `yaml:"server"`
	Camera SettingsSeed `yaml:"camera"`
}

// SettingsSeed mirrors SettingsUpdate for YAML input
type SettingsSeed struct {
	AuthToken        *string  `yaml:"auth_token"`
	SnapshotURL      *string  `yaml:"snapshot_url"`
	WebRTCURL        *string  `yaml:"webrtc_url"`
	DefaultZOffset   *float64 `yaml:"default_z_offset"`
	NozzleTipCoordsX *int     `yaml:"nozzle_tip_coords_x"`
	NozzleTipCoordsY *int     `yaml:"nozzle_tip_coords_y"`
	LiveUpload       *bool    `yaml:"live_upload"`
	FlipH            *bool    `yaml:"flip_h"`
	FlipV            *bool    `yaml:"flip_v"`
	Rotate           *bool    `yaml:"rotate"`
}

// LoadSeedFile reads and parses a seed file
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// values flattens the seed into configuration key/value pairs
func (s *SeedFile) values() (map[string]string, error) {
	update := SettingsUpdate(s.Camera)
	if err := validateSettingsUpdate(update); err != nil {
		return nil, err
	}

	out := update.values()
	if s.Server.Port != "" {
		out[ConfigKeyWebPort] = s.Server.Port
	}
	if s.Server.PollInterval > 0 {
		out[ConfigKeyPollInterval] = strconv.Itoa(s.Server.PollInterval)
	}
	if s.Server.CloudURL != "" {
		out[ConfigKeyCloudURL] = s.Server.CloudURL
	}
	if s.Server.APIKey != "" {
		out[ConfigKeyAPIKey] = s.Server.APIKey
	}
	return out, nil
}
