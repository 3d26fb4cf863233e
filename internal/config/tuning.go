package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// ROIConfig restricts motion detection to a sub-rectangle of the frame.
type ROIConfig struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ZoneSeed is a zone definition used to populate the zones table on first
// run, when the store has no zones of its own.
type ZoneSeed struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Radius int    `json:"radius"`
	Color  string `json:"color,omitempty"`
}

// TuningConfig represents the root configuration for the monitoring daemon.
// All fields are pointers so that partial JSON files are safe: fields
// omitted from the file fall back to the Get* defaults.
type TuningConfig struct {
	// Motion detection params
	MotionSensitivity   *float64   `json:"motion_sensitivity,omitempty"`
	MotionMinAreaPx     *int       `json:"motion_min_area_px,omitempty"`
	MotionMaxAreaPx     *int       `json:"motion_max_area_px,omitempty"`
	MotionHistoryFrames *int       `json:"motion_history_frames,omitempty"`
	MotionDetectShadows *bool      `json:"motion_detect_shadows,omitempty"`
	MotionMinConfidence *float64   `json:"motion_min_confidence,omitempty"`
	MotionROI           *ROIConfig `json:"motion_roi,omitempty"`

	// Tracking params
	TrackingMaxDistancePx          *float64 `json:"tracking_max_distance_px,omitempty"`
	TrackingStationaryThresholdMin *int     `json:"tracking_stationary_threshold_min,omitempty"`

	// Publication window params. The start/end strings are parsed by the
	// publication gate, which substitutes its own default on a bad value
	// rather than failing, so they are not validated here.
	PublishFilterEnabled *bool   `json:"publish_filter_enabled,omitempty"`
	PublishActiveStart   *string `json:"publish_active_start,omitempty"`
	PublishActiveEnd     *string `json:"publish_active_end,omitempty"`

	// Monitoring schedule params (gates frame processing, not publication)
	MonitorScheduleEnabled *bool   `json:"monitor_schedule_enabled,omitempty"`
	MonitorScheduleStart   *string `json:"monitor_schedule_start,omitempty"`
	MonitorScheduleEnd     *string `json:"monitor_schedule_end,omitempty"`

	// Stream acquisition params
	StreamURL             *string  `json:"stream_url,omitempty"`
	StreamTimeoutS        *int     `json:"stream_timeout_s,omitempty"`
	StreamMaxRetries      *int     `json:"stream_max_retries,omitempty"`
	StreamRetryDelayS     *int     `json:"stream_retry_delay_s,omitempty"`
	StreamRetryForever    *bool    `json:"stream_retry_forever,omitempty"`
	StreamFallbackEnabled *bool    `json:"stream_fallback_enabled,omitempty"`
	StreamFallbackPath    *string  `json:"stream_fallback_path,omitempty"`
	StreamFPSTarget       *float64 `json:"stream_fps_target,omitempty"`

	// Snapshot params
	SnapshotDir       *string `json:"snapshot_dir,omitempty"`
	SnapshotIntervalS *int    `json:"snapshot_interval_s,omitempty"`
	SnapshotMaxFiles  *int    `json:"snapshot_max_files,omitempty"`
	SnapshotQuality   *int    `json:"snapshot_quality,omitempty"`

	// Heatmap params
	HeatmapDir    *string `json:"heatmap_dir,omitempty"`
	HeatmapGridPx *int    `json:"heatmap_grid_px,omitempty"`

	// Notification params
	NotifyEnabled        *bool    `json:"notify_enabled,omitempty"`
	NotifyURL            *string  `json:"notify_url,omitempty"`
	NotifyRateLimitS     *int     `json:"notify_rate_limit_s,omitempty"`
	NotifyTrackCooldownS *int     `json:"notify_track_cooldown_s,omitempty"`
	NotifyMinConfidence  *float64 `json:"notify_min_confidence,omitempty"`

	// Session params
	SessionGapS *int `json:"session_gap_s,omitempty"`

	// Zone seed definitions, applied only when the zones table is empty.
	Zones []ZoneSeed `json:"zones,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/motion/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MotionSensitivity != nil && *c.MotionSensitivity <= 0 {
		return fmt.Errorf("motion_sensitivity must be positive, got %f", *c.MotionSensitivity)
	}

	if c.MotionMinAreaPx != nil && *c.MotionMinAreaPx < 0 {
		return fmt.Errorf("motion_min_area_px must be non-negative, got %d", *c.MotionMinAreaPx)
	}

	if c.MotionMaxAreaPx != nil {
		if *c.MotionMaxAreaPx <= 0 {
			return fmt.Errorf("motion_max_area_px must be positive, got %d", *c.MotionMaxAreaPx)
		}
		minArea := 1000
		if c.MotionMinAreaPx != nil {
			minArea = *c.MotionMinAreaPx
		}
		if *c.MotionMaxAreaPx < minArea {
			return fmt.Errorf("motion_max_area_px (%d) must be >= motion_min_area_px (%d)", *c.MotionMaxAreaPx, minArea)
		}
	}

	if c.MotionHistoryFrames != nil && *c.MotionHistoryFrames < 1 {
		return fmt.Errorf("motion_history_frames must be at least 1, got %d", *c.MotionHistoryFrames)
	}

	if c.MotionMinConfidence != nil {
		if *c.MotionMinConfidence < 0 || *c.MotionMinConfidence > 1 {
			return fmt.Errorf("motion_min_confidence must be between 0 and 1, got %f", *c.MotionMinConfidence)
		}
	}

	if c.MotionROI != nil {
		if c.MotionROI.W <= 0 || c.MotionROI.H <= 0 {
			return fmt.Errorf("motion_roi dimensions must be positive, got %dx%d", c.MotionROI.W, c.MotionROI.H)
		}
	}

	if c.TrackingMaxDistancePx != nil && *c.TrackingMaxDistancePx <= 0 {
		return fmt.Errorf("tracking_max_distance_px must be positive, got %f", *c.TrackingMaxDistancePx)
	}

	if c.TrackingStationaryThresholdMin != nil && *c.TrackingStationaryThresholdMin < 0 {
		return fmt.Errorf("tracking_stationary_threshold_min must be non-negative, got %d", *c.TrackingStationaryThresholdMin)
	}

	if c.StreamFPSTarget != nil && *c.StreamFPSTarget < 0 {
		return fmt.Errorf("stream_fps_target must be non-negative, got %f", *c.StreamFPSTarget)
	}

	if c.SnapshotQuality != nil {
		if *c.SnapshotQuality < 1 || *c.SnapshotQuality > 100 {
			return fmt.Errorf("snapshot_quality must be between 1 and 100, got %d", *c.SnapshotQuality)
		}
	}

	if c.HeatmapGridPx != nil && *c.HeatmapGridPx <= 0 {
		return fmt.Errorf("heatmap_grid_px must be positive, got %d", *c.HeatmapGridPx)
	}

	if c.NotifyMinConfidence != nil {
		if *c.NotifyMinConfidence < 0 || *c.NotifyMinConfidence > 1 {
			return fmt.Errorf("notify_min_confidence must be between 0 and 1, got %f", *c.NotifyMinConfidence)
		}
	}

	for i, z := range c.Zones {
		if z.Name == "" {
			return fmt.Errorf("zones[%d]: name must not be empty", i)
		}
		if z.Radius <= 0 {
			return fmt.Errorf("zones[%d] %q: radius must be positive, got %d", i, z.Name, z.Radius)
		}
	}

	return nil
}

// GetMotionSensitivity returns the motion_sensitivity value or the default.
func (c *TuningConfig) GetMotionSensitivity() float64 {
	if c.MotionSensitivity == nil {
		return 16.0 // default
	}
	return *c.MotionSensitivity
}

// GetMotionMinAreaPx returns the motion_min_area_px value or the default.
func (c *TuningConfig) GetMotionMinAreaPx() int {
	if c.MotionMinAreaPx == nil {
		return 1000
	}
	return *c.MotionMinAreaPx
}

// GetMotionMaxAreaPx returns the motion_max_area_px value or the default.
func (c *TuningConfig) GetMotionMaxAreaPx() int {
	if c.MotionMaxAreaPx == nil {
		return 8000
	}
	return *c.MotionMaxAreaPx
}

// GetMotionHistoryFrames returns the motion_history_frames value or the default.
func (c *TuningConfig) GetMotionHistoryFrames() int {
	if c.MotionHistoryFrames == nil {
		return 500
	}
	return *c.MotionHistoryFrames
}

// GetMotionDetectShadows returns the motion_detect_shadows value or the default.
func (c *TuningConfig) GetMotionDetectShadows() bool {
	if c.MotionDetectShadows == nil {
		return true
	}
	return *c.MotionDetectShadows
}

// GetMotionMinConfidence returns the motion_min_confidence value or the default.
func (c *TuningConfig) GetMotionMinConfidence() float64 {
	if c.MotionMinConfidence == nil {
		return 0.0
	}
	return *c.MotionMinConfidence
}

// GetMotionROI returns the configured ROI, or nil when detection covers the
// whole frame.
func (c *TuningConfig) GetMotionROI() *ROIConfig {
	return c.MotionROI
}

// GetTrackingMaxDistancePx returns the tracking_max_distance_px value or the default.
func (c *TuningConfig) GetTrackingMaxDistancePx() float64 {
	if c.TrackingMaxDistancePx == nil {
		return 100.0
	}
	return *c.TrackingMaxDistancePx
}

// GetTrackingStationaryThresholdMin returns the tracking_stationary_threshold_min
// value or the default.
func (c *TuningConfig) GetTrackingStationaryThresholdMin() int {
	if c.TrackingStationaryThresholdMin == nil {
		return 5
	}
	return *c.TrackingStationaryThresholdMin
}

// GetPublishFilterEnabled returns the publish_filter_enabled value or the default.
func (c *TuningConfig) GetPublishFilterEnabled() bool {
	if c.PublishFilterEnabled == nil {
		return true
	}
	return *c.PublishFilterEnabled
}

// GetPublishActiveStart returns the publish_active_start value or the default.
func (c *TuningConfig) GetPublishActiveStart() string {
	if c.PublishActiveStart == nil {
		return "22:00"
	}
	return *c.PublishActiveStart
}

// GetPublishActiveEnd returns the publish_active_end value or the default.
func (c *TuningConfig) GetPublishActiveEnd() string {
	if c.PublishActiveEnd == nil {
		return "06:00"
	}
	return *c.PublishActiveEnd
}

// GetMonitorScheduleEnabled returns the monitor_schedule_enabled value or the default.
func (c *TuningConfig) GetMonitorScheduleEnabled() bool {
	if c.MonitorScheduleEnabled == nil {
		return true
	}
	return *c.MonitorScheduleEnabled
}

// GetMonitorScheduleStart returns the monitor_schedule_start value or the default.
func (c *TuningConfig) GetMonitorScheduleStart() string {
	if c.MonitorScheduleStart == nil {
		return "20:00"
	}
	return *c.MonitorScheduleStart
}

// GetMonitorScheduleEnd returns the monitor_schedule_end value or the default.
func (c *TuningConfig) GetMonitorScheduleEnd() string {
	if c.MonitorScheduleEnd == nil {
		return "08:00"
	}
	return *c.MonitorScheduleEnd
}

// GetStreamURL returns the stream_url value or the default.
func (c *TuningConfig) GetStreamURL() string {
	if c.StreamURL == nil {
		return ""
	}
	return *c.StreamURL
}

// GetStreamTimeout returns the stream connect timeout as a time.Duration.
func (c *TuningConfig) GetStreamTimeout() time.Duration {
	if c.StreamTimeoutS == nil {
		return 30 * time.Second
	}
	return time.Duration(*c.StreamTimeoutS) * time.Second
}

// GetStreamMaxRetries returns the stream_max_retries value or the default.
func (c *TuningConfig) GetStreamMaxRetries() int {
	if c.StreamMaxRetries == nil {
		return 5
	}
	return *c.StreamMaxRetries
}

// GetStreamRetryDelay returns the delay between connect attempts.
func (c *TuningConfig) GetStreamRetryDelay() time.Duration {
	if c.StreamRetryDelayS == nil {
		return 10 * time.Second
	}
	return time.Duration(*c.StreamRetryDelayS) * time.Second
}

// GetStreamRetryForever returns the stream_retry_forever value or the default.
func (c *TuningConfig) GetStreamRetryForever() bool {
	if c.StreamRetryForever == nil {
		return false
	}
	return *c.StreamRetryForever
}

// GetStreamFallbackEnabled returns the stream_fallback_enabled value or the default.
func (c *TuningConfig) GetStreamFallbackEnabled() bool {
	if c.StreamFallbackEnabled == nil {
		return false
	}
	return *c.StreamFallbackEnabled
}

// GetStreamFallbackPath returns the stream_fallback_path value or the default.
func (c *TuningConfig) GetStreamFallbackPath() string {
	if c.StreamFallbackPath == nil {
		return ""
	}
	return *c.StreamFallbackPath
}

// GetStreamFPSTarget returns the stream_fps_target value or the default.
func (c *TuningConfig) GetStreamFPSTarget() float64 {
	if c.StreamFPSTarget == nil {
		return 2.0
	}
	return *c.StreamFPSTarget
}

// GetSnapshotDir returns the snapshot_dir value or the default.
func (c *TuningConfig) GetSnapshotDir() string {
	if c.SnapshotDir == nil {
		return "static/snapshots"
	}
	return *c.SnapshotDir
}

// GetSnapshotInterval returns the minimum spacing between saved snapshots.
func (c *TuningConfig) GetSnapshotInterval() time.Duration {
	if c.SnapshotIntervalS == nil {
		return 60 * time.Second
	}
	return time.Duration(*c.SnapshotIntervalS) * time.Second
}

// GetSnapshotMaxFiles returns the snapshot_max_files value or the default.
func (c *TuningConfig) GetSnapshotMaxFiles() int {
	if c.SnapshotMaxFiles == nil {
		return 100
	}
	return *c.SnapshotMaxFiles
}

// GetSnapshotQuality returns the snapshot_quality value or the default.
func (c *TuningConfig) GetSnapshotQuality() int {
	if c.SnapshotQuality == nil {
		return 85
	}
	return *c.SnapshotQuality
}

// GetHeatmapDir returns the heatmap_dir value or the default.
func (c *TuningConfig) GetHeatmapDir() string {
	if c.HeatmapDir == nil {
		return "static/heatmaps"
	}
	return *c.HeatmapDir
}

// GetHeatmapGridPx returns the heatmap_grid_px value or the default.
func (c *TuningConfig) GetHeatmapGridPx() int {
	if c.HeatmapGridPx == nil {
		return 50
	}
	return *c.HeatmapGridPx
}

// GetNotifyEnabled returns the notify_enabled value or the default.
func (c *TuningConfig) GetNotifyEnabled() bool {
	if c.NotifyEnabled == nil {
		return false
	}
	return *c.NotifyEnabled
}

// GetNotifyURL returns the notify_url value or the default.
func (c *TuningConfig) GetNotifyURL() string {
	if c.NotifyURL == nil {
		return "http://localhost:8090"
	}
	return *c.NotifyURL
}

// GetNotifyRateLimit returns the global notification cooldown.
func (c *TuningConfig) GetNotifyRateLimit() time.Duration {
	if c.NotifyRateLimitS == nil {
		return 300 * time.Second
	}
	return time.Duration(*c.NotifyRateLimitS) * time.Second
}

// GetNotifyTrackCooldown returns the per-track notification cooldown.
func (c *TuningConfig) GetNotifyTrackCooldown() time.Duration {
	if c.NotifyTrackCooldownS == nil {
		return 25 * time.Second
	}
	return time.Duration(*c.NotifyTrackCooldownS) * time.Second
}

// GetNotifyMinConfidence returns the notify_min_confidence value or the default.
func (c *TuningConfig) GetNotifyMinConfidence() float64 {
	if c.NotifyMinConfidence == nil {
		return 0.35
	}
	return *c.NotifyMinConfidence
}

// GetSessionGap returns the idle gap that closes an activity session.
func (c *TuningConfig) GetSessionGap() time.Duration {
	if c.SessionGapS == nil {
		return 300 * time.Second
	}
	return time.Duration(*c.SessionGapS) * time.Second
}
