package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// CameraBridge ties the settings store to the camera and the cloud service
type CameraBridge struct {
	config   *Config
	dbFile   string
	db       *sql.DB
	snapshot *SnapshotClient
	cloud    *CloudClient
	preview  PreviewStatus
	mutex    sync.RWMutex
}

// PreviewStatus is the last observed camera state and the preview computed from it
type PreviewStatus struct {
	Camera     string           `json:"camera"`
	Geometry   *ImageGeometry   `json:"geometry,omitempty"`
	DisplayBox *DisplayBox      `json:"display_box,omitempty"`
	Transform  PreviewTransform `json:"transform"`
	CSS        string           `json:"css"`
	Origin     string           `json:"origin"`
	Error      string           `json:"error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// MarkRecord is a nozzle mark accepted from the preview
type MarkRecord struct {
	ID            int       `json:"id"`
	X             uint32    `json:"x"`
	Y             uint32    `json:"y"`
	NaturalWidth  uint32    `json:"natural_width"`
	NaturalHeight uint32    `json:"natural_height"`
	MarkedAt      time.Time `json:"marked_at"`
}

// NewCameraBridge opens the database at dbFile and creates the clients
func NewCameraBridge(dbFile string) (*CameraBridge, error) {
	if dbFile == "" {
		dbFile = getDBFilePath()
	}
	bridge := &CameraBridge{
		dbFile:   dbFile,
		snapshot: NewSnapshotClient(SnapshotTimeout),
		cloud:    NewCloudClient(DefaultCloudURL, CloudTimeout),
		preview:  PreviewStatus{Camera: CameraNotConfigured, Transform: ComputeTransform(TransformState{})},
	}

	if err := bridge.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := bridge.ReloadConfig(); err != nil {
		return nil, err
	}

	return bridge, nil
}

// initDatabase initializes the SQLite database
func (b *CameraBridge) initDatabase() error {
	db, err := sql.Open("sqlite3", b.dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	b.db = db

	createTables := []string{
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS nozzle_marks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			natural_width INTEGER NOT NULL,
			natural_height INTEGER NOT NULL,
			marked_at TIMESTAMP
		)`,
	}

	for _, query := range createTables {
		if _, err := b.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := b.initializeDefaultConfig(); err != nil {
		return fmt.Errorf("failed to initialize default configuration: %w", err)
	}

	return nil
}

// initializeDefaultConfig sets up default configuration values on a fresh database
func (b *CameraBridge) initializeDefaultConfig() error {
	defaultConfigs := map[string]string{
		ConfigKeyAuthToken:      "",
		ConfigKeySnapshotURL:    DefaultSnapshotURL,
		ConfigKeyWebRTCURL:      DefaultWebRTCURL,
		ConfigKeyDefaultZOffset: DefaultZOffset,
		ConfigKeyNozzleTipX:     DefaultNozzleTipCoord,
		ConfigKeyNozzleTipY:     DefaultNozzleTipCoord,
		ConfigKeyLiveUpload:     "false",
		ConfigKeyFlipH:          "false",
		ConfigKeyFlipV:          "false",
		ConfigKeyRotate:         "false",
		ConfigKeyPollInterval:   fmt.Sprint(DefaultPollInterval),
		ConfigKeyWebPort:        DefaultWebPort,
		ConfigKeyCloudURL:       DefaultCloudURL,
	}

	var totalCount int
	err := b.db.QueryRow("SELECT COUNT(*) FROM configuration").Scan(&totalCount)
	if err != nil {
		return fmt.Errorf("failed to check config existence: %w", err)
	}

	if totalCount > 0 {
		return nil
	}

	for key, value := range defaultConfigs {
		_, err := b.db.Exec(
			"INSERT INTO configuration (key, value, description) VALUES (?, ?, ?)",
			key, value, getConfigDescription(key),
		)
		if err != nil {
			return fmt.Errorf("failed to insert default config %s: %w", key, err)
		}
	}

	return nil
}

// getConfigDescription returns a description for a configuration key
func getConfigDescription(key string) string {
	descriptions := map[string]string{
		ConfigKeyAuthToken:       "Cloud authorization token",
		ConfigKeySnapshotURL:     "Camera snapshot URL",
		ConfigKeyWebRTCURL:       "Camera WebRTC stream URL",
		ConfigKeyDefaultZOffset:  "Default Z offset in millimetres",
		ConfigKeyNozzleTipX:      "Nozzle tip X in natural image pixels",
		ConfigKeyNozzleTipY:      "Nozzle tip Y in natural image pixels",
		ConfigKeyLiveUpload:      "Upload frames while printing",
		ConfigKeyFlipH:           "Flip camera image horizontally",
		ConfigKeyFlipV:           "Flip camera image vertically",
		ConfigKeyRotate:          "Rotate camera image 90 degrees",
		ConfigKeyPollInterval:    "Camera polling interval in seconds",
		ConfigKeyWebPort:         "Port for web interface",
		ConfigKeyCloudURL:        "Cloud service base URL",
		ConfigKeySnapshotTimeout: "Snapshot request timeout in seconds",
		ConfigKeyCloudTimeout:    "Cloud request timeout in seconds",
		ConfigKeyAPIKey:          "API key required by the panel and the /api routes",
	}
	if desc, exists := descriptions[key]; exists {
		return desc
	}
	return "Configuration value"
}

// GetConfigValue gets a configuration value from the database
func (b *CameraBridge) GetConfigValue(key string) (string, error) {
	var value string
	err := b.db.QueryRow("SELECT value FROM configuration WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to get config value for %s: %w", key, err)
	}
	return value, nil
}

// SetConfigValue sets a configuration value in the database
func (b *CameraBridge) SetConfigValue(key, value string) error {
	_, err := b.db.Exec(
		"INSERT OR REPLACE INTO configuration (key, value, description, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		key, value, getConfigDescription(key),
	)
	if err != nil {
		return fmt.Errorf("failed to set config value for %s: %w", key, err)
	}
	return nil
}

// setConfigValues writes several values in one transaction
func (b *CameraBridge) setConfigValues(values map[string]string) error {
	return b.inTx(func(tx *sql.Tx) error {
		return writeConfigValues(tx, values)
	})
}

// inTx runs fn in a transaction and commits it if fn succeeds
func (b *CameraBridge) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func writeConfigValues(tx *sql.Tx, values map[string]string) error {
	for key, value := range values {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO configuration (key, value, description, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
			key, value, getConfigDescription(key),
		)
		if err != nil {
			return fmt.Errorf("failed to set config value for %s: %w", key, err)
		}
	}
	return nil
}

// GetAllConfig gets all configuration values
func (b *CameraBridge) GetAllConfig() (map[string]string, error) {
	rows, err := b.db.Query("SELECT key, value FROM configuration")
	if err != nil {
		return nil, fmt.Errorf("failed to get all config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		config[key] = value
	}

	return config, rows.Err()
}

// ApplySeed writes a seed file into a database that has not been seeded yet
func (b *CameraBridge) ApplySeed(seed *SeedFile, source string) (bool, error) {
	if applied, err := b.GetConfigValue(ConfigKeySeedApplied); err == nil && applied != "" {
		log.Printf("[Config] Seed already applied from %s, skipping", applied)
		return false, nil
	}

	values, err := seed.values()
	if err != nil {
		return false, fmt.Errorf("invalid seed file: %w", err)
	}
	values[ConfigKeySeedApplied] = source

	if err := b.setConfigValues(values); err != nil {
		return false, err
	}

	log.Printf("[Config] Applied %d seed values from %s", len(values)-1, source)
	return true, nil
}

// ReloadConfig reloads the configuration from the database
func (b *CameraBridge) ReloadConfig() error {
	config, err := LoadConfig(b)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return b.UpdateConfig(config)
}

// UpdateConfig updates the bridge configuration
func (b *CameraBridge) UpdateConfig(config *Config) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.config = config
	b.snapshot.SetTimeout(config.SnapshotTimeout)
	b.cloud = NewCloudClient(config.CloudURL, config.CloudTimeout)

	return nil
}

// Config returns the active configuration
func (b *CameraBridge) Config() *Config {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.config
}

// GetSettings reads the plugin settings from the database
func (b *CameraBridge) GetSettings() (PluginSettings, error) {
	values, err := b.GetAllConfig()
	if err != nil {
		return PluginSettings{}, err
	}
	return parseSettings(values), nil
}

// UpdateSettings validates and persists a partial settings change
func (b *CameraBridge) UpdateSettings(update SettingsUpdate) (PluginSettings, error) {
	if err := validateSettingsUpdate(update); err != nil {
		return PluginSettings{}, err
	}

	if err := b.setConfigValues(update.values()); err != nil {
		return PluginSettings{}, err
	}

	if err := b.ReloadConfig(); err != nil {
		return PluginSettings{}, err
	}

	settings, err := b.GetSettings()
	if err != nil {
		return PluginSettings{}, err
	}

	// Orientation changes invalidate the computed preview
	b.refreshPreview(settings.TransformState())
	return settings, nil
}

// RecordNozzleMark maps a click on the preview to natural pixels and stores it
func (b *CameraBridge) RecordNozzleMark(clickX, clickY, renderedWidth, renderedHeight float64, naturalWidth, naturalHeight uint32) (NozzleMark, error) {
	mark, err := MapClickToNaturalCoords(clickX, clickY, renderedWidth, renderedHeight, naturalWidth, naturalHeight)
	if err != nil {
		return NozzleMark{}, err
	}

	// The stored coordinates and the history row change together
	x, y := int(mark.X), int(mark.Y)
	update := SettingsUpdate{NozzleTipCoordsX: &x, NozzleTipCoordsY: &y}
	err = b.inTx(func(tx *sql.Tx) error {
		if err := writeConfigValues(tx, update.values()); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO nozzle_marks (x, y, natural_width, natural_height, marked_at) VALUES (?, ?, ?, ?, ?)",
			mark.X, mark.Y, naturalWidth, naturalHeight, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to log nozzle mark: %w", err)
		}
		return nil
	})
	if err != nil {
		return NozzleMark{}, fmt.Errorf("failed to save nozzle mark: %w", err)
	}

	log.Printf("[Preview] Nozzle tip marked at (%d, %d) on %dx%d image", mark.X, mark.Y, naturalWidth, naturalHeight)
	return mark, nil
}

// GetNozzleMarkHistory returns the most recent marks, newest first
func (b *CameraBridge) GetNozzleMarkHistory(limit int) ([]MarkRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.Query(
		"SELECT id, x, y, natural_width, natural_height, marked_at FROM nozzle_marks ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get nozzle marks: %w", err)
	}
	defer rows.Close()

	records := []MarkRecord{}
	for rows.Next() {
		var r MarkRecord
		if err := rows.Scan(&r.ID, &r.X, &r.Y, &r.NaturalWidth, &r.NaturalHeight, &r.MarkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan nozzle mark row: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// TestAuthToken checks a token against the cloud service and saves it first, the way the
// settings panel's test button does
func (b *CameraBridge) TestAuthToken(ctx context.Context, token string) (bool, string) {
	if token == "" {
		return false, AuthTextEmptyToken
	}

	if err := b.SetConfigValue(ConfigKeyAuthToken, token); err != nil {
		log.Printf("[Cloud] Failed to save auth token: %v", err)
	}

	b.mutex.RLock()
	cloud := b.cloud
	b.mutex.RUnlock()

	return cloud.TestAuthToken(ctx, token)
}

// SnapshotResult is the outcome of the snapshot command
type SnapshotResult struct {
	Success    bool             `json:"success"`
	Text       string           `json:"text"`
	Image      []byte           `json:"image"`
	Geometry   *ImageGeometry   `json:"geometry,omitempty"`
	DisplayBox *DisplayBox      `json:"display_box,omitempty"`
	Transform  PreviewTransform `json:"transform"`
}

// TakeSnapshot saves the snapshot URL, fetches one frame and measures it
func (b *CameraBridge) TakeSnapshot(ctx context.Context, rawURL string) SnapshotResult {
	settings, err := b.GetSettings()
	if err != nil {
		return SnapshotResult{Text: err.Error()}
	}
	result := SnapshotResult{Text: SnapshotTextUnknown, Transform: ComputeTransform(settings.TransformState())}

	if rawURL == "" {
		result.Text = SnapshotTextEmptyURL
		return result
	}
	if _, err := b.UpdateSettings(SettingsUpdate{SnapshotURL: &rawURL}); err != nil {
		result.Text = err.Error()
		return result
	}

	frame, err := b.snapshot.Fetch(ctx, trimURL(rawURL))
	if err != nil {
		result.Text = err.Error()
		b.setCameraOffline(err)
		return result
	}

	geometry, box, err := b.measure(frame, settings.TransformState())
	if err != nil {
		result.Text = err.Error()
		return result
	}

	result.Success = true
	result.Text = SnapshotTextCaptured
	result.Image = frame.Data
	result.Geometry = &geometry
	result.DisplayBox = &box
	return result
}

// measure decodes a frame's size and records the preview for it
func (b *CameraBridge) measure(frame *Frame, state TransformState) (ImageGeometry, DisplayBox, error) {
	geometry := ImageGeometry{
		NaturalWidth:  frame.Width,
		NaturalHeight: frame.Height,
		DisplayWidth:  DefaultPreviewWidth,
	}
	box, err := ComputeDisplayBox(geometry, state)
	if err != nil {
		b.setCameraOffline(err)
		return ImageGeometry{}, DisplayBox{}, err
	}

	b.mutex.Lock()
	b.preview = PreviewStatus{
		Camera:     CameraOnline,
		Geometry:   &geometry,
		DisplayBox: &box,
		Transform:  ComputeTransform(state),
		Timestamp:  time.Now(),
	}
	b.preview.CSS = b.preview.Transform.CSS()
	b.preview.Origin = b.preview.Transform.Origin.CSS()
	b.mutex.Unlock()

	return geometry, box, nil
}

// refreshPreview recomputes the preview for a new orientation, keeping the last geometry
func (b *CameraBridge) refreshPreview(state TransformState) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.preview.Transform = ComputeTransform(state)
	b.preview.CSS = b.preview.Transform.CSS()
	b.preview.Origin = b.preview.Transform.Origin.CSS()
	b.preview.Timestamp = time.Now()
	if b.preview.Geometry != nil {
		box, err := ComputeDisplayBox(*b.preview.Geometry, state)
		if err == nil {
			b.preview.DisplayBox = &box
		}
	}
}

func (b *CameraBridge) setCameraOffline(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.preview.Camera = CameraOffline
	b.preview.Error = err.Error()
	b.preview.Timestamp = time.Now()
}

// MonitorCamera polls the snapshot URL once and updates the preview status
func (b *CameraBridge) MonitorCamera(ctx context.Context) {
	settings, err := b.GetSettings()
	if err != nil {
		log.Printf("[Monitor] Failed to read settings: %v", err)
		return
	}

	if settings.SnapshotURL == "" {
		b.mutex.Lock()
		b.preview.Camera = CameraNotConfigured
		b.mutex.Unlock()
		return
	}

	frame, err := b.snapshot.Fetch(ctx, settings.SnapshotURL)
	if err != nil {
		if errors.Is(err, ErrSnapshotBlacklisted) {
			log.Printf("[Monitor] Snapshot URL is blacklisted, skipping")
		} else {
			log.Printf("[Monitor] Warning: Failed to fetch snapshot from %s: %v", settings.SnapshotURL, err)
		}
		b.setCameraOffline(err)
		return
	}

	if _, _, err := b.measure(frame, settings.TransformState()); err != nil {
		log.Printf("[Monitor] Snapshot from %s is unusable: %v", settings.SnapshotURL, err)
	}
}

// GetPreviewStatus returns the last computed preview state
func (b *CameraBridge) GetPreviewStatus() PreviewStatus {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.preview
}

// Close closes the database connection
func (b *CameraBridge) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
