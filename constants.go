package main

import "time"

// Camera states
const (
	CameraOnline        = "online"
	CameraOffline       = "offline"
	CameraNotConfigured = "not_configured"
)

// Default configuration values
const (
	DefaultWebPort      = "5000"
	DefaultWebHost      = "0.0.0.0"
	DefaultPollInterval = 30
	DefaultDBFileName   = "nozzlecam.db"
	DefaultPreviewWidth = 400
	MaxPreviewWidth     = 4096
)

// Plugin setting defaults
const (
	DefaultSnapshotURL    = "http://localhost/webcam/?action=snapshot"
	DefaultWebRTCURL      = "http://localhost/webcam/webrtc"
	DefaultZOffset        = "0.0"
	DefaultNozzleTipCoord = "10"
	ImagePlaceholderURL   = "https://matta-os.fra1.cdn.digitaloceanspaces.com/site-assets/placeholder.png"
)

// Cloud endpoint
const (
	DefaultCloudURL = "https://os.matta.ai/"
	CloudPingPath   = "api/v1/printers/ping"
)

// Database configuration keys
const (
	ConfigKeyAuthToken       = "auth_token"
	ConfigKeySnapshotURL     = "snapshot_url"
	ConfigKeyWebRTCURL       = "webrtc_url"
	ConfigKeyDefaultZOffset  = "default_z_offset"
	ConfigKeyNozzleTipX      = "nozzle_tip_coords_x"
	ConfigKeyNozzleTipY      = "nozzle_tip_coords_y"
	ConfigKeyLiveUpload      = "live_upload"
	ConfigKeyFlipH           = "flip_h"
	ConfigKeyFlipV           = "flip_v"
	ConfigKeyRotate          = "rotate"
	ConfigKeyPollInterval    = "poll_interval"
	ConfigKeyWebPort         = "web_port"
	ConfigKeyCloudURL        = "cloud_url"
	ConfigKeySnapshotTimeout = "snapshot_timeout"
	ConfigKeyCloudTimeout    = "cloud_timeout"
	ConfigKeyAPIKey          = "api_key"
	ConfigKeySeedApplied     = "seed_applied"
)

// HTTP timeouts
const (
	SnapshotTimeout = 10 // seconds
	CloudTimeout    = 5  // seconds
)

// Bad snapshot URL cache
const (
	MaxSnapshotFailures  = 3
	SnapshotBlacklistTTL = 2 * time.Minute
)

// Preview image output formats
const (
	FormatPNG  = "png"
	FormatWebP = "webp"
)
