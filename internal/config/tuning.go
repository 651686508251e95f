package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/lineage/internal/fsutil"
)

// DefaultConfigPath is where the CLI looks for lineage tuning when no
// -config flag is given.
const DefaultConfigPath = "config/lineage.defaults.json"

// TuningConfig holds the user-adjustable parameters of the lineage tools.
// Every field is optional; the Get* methods supply defaults for nil fields so
// a partial JSON file is always safe.
type TuningConfig struct {
	// Noise filtering for classification and selection mapping
	SizeThreshold        *uint32 `json:"size_threshold,omitempty"`
	UncertaintyThreshold *uint32 `json:"uncertainty_threshold,omitempty"`

	// Trail rendering
	GhostNum *int    `json:"ghost_num,omitempty"`
	DrawLead *bool   `json:"draw_lead,omitempty"`
	DrawTail *bool   `json:"draw_tail,omitempty"`
	Shuffle  *uint32 `json:"shuffle,omitempty"`

	// Track file output
	CompressionLevel *int `json:"compression_level,omitempty"` // zstd level, 0 disables

	// Automatic linking of candidate edges
	AutoLinkMaxDistance *float64 `json:"autolink_max_distance,omitempty"`
}

// Helper functions to create pointers
func ptrUint32(v uint32) *uint32    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the Get* defaults. Useful for writing out a template file.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		SizeThreshold:        ptrUint32(empty.GetSizeThreshold()),
		UncertaintyThreshold: ptrUint32(empty.GetUncertaintyThreshold()),
		GhostNum:             ptrInt(empty.GetGhostNum()),
		DrawLead:             ptrBool(empty.GetDrawLead()),
		DrawTail:             ptrBool(empty.GetDrawTail()),
		Shuffle:              ptrUint32(empty.GetShuffle()),
		CompressionLevel:     ptrInt(empty.GetCompressionLevel()),
		AutoLinkMaxDistance:  ptrFloat64(empty.GetAutoLinkMaxDistance()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	return LoadTuningConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadTuningConfigFS is LoadTuningConfig reading through fsys.
func LoadTuningConfigFS(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to an empty config
// (all defaults) when it does not. Errors reading or parsing an existing file
// are returned.
func LoadOrDefault(path string) (*TuningConfig, error) {
	return LoadOrDefaultFS(fsutil.OSFileSystem{}, path)
}

// LoadOrDefaultFS is LoadOrDefault reading through fsys.
func LoadOrDefaultFS(fsys fsutil.FileSystem, path string) (*TuningConfig, error) {
	if path == "" || !fsys.Exists(path) {
		return EmptyTuningConfig(), nil
	}
	return LoadTuningConfigFS(fsys, path)
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.GhostNum != nil && *c.GhostNum < 0 {
		return fmt.Errorf("ghost_num must be non-negative, got %d", *c.GhostNum)
	}

	// zstd accepts levels 1..22; 0 means store uncompressed.
	if c.CompressionLevel != nil {
		if *c.CompressionLevel < 0 || *c.CompressionLevel > 22 {
			return fmt.Errorf("compression_level must be between 0 and 22, got %d", *c.CompressionLevel)
		}
	}

	if c.AutoLinkMaxDistance != nil && *c.AutoLinkMaxDistance < 0 {
		return fmt.Errorf("autolink_max_distance must be non-negative, got %f", *c.AutoLinkMaxDistance)
	}

	return nil
}

// GetSizeThreshold returns the size_threshold value or the default.
func (c *TuningConfig) GetSizeThreshold() uint32 {
	if c.SizeThreshold == nil {
		return 0 // default: keep every cell
	}
	return *c.SizeThreshold
}

// GetUncertaintyThreshold returns the uncertainty_threshold value or the default.
// Zero disables uncertainty filtering.
func (c *TuningConfig) GetUncertaintyThreshold() uint32 {
	if c.UncertaintyThreshold == nil {
		return 0
	}
	return *c.UncertaintyThreshold
}

// GetGhostNum returns the ghost_num value or the default.
func (c *TuningConfig) GetGhostNum() int {
	if c.GhostNum == nil {
		return 10
	}
	return *c.GhostNum
}

// GetDrawLead returns the draw_lead value or the default.
func (c *TuningConfig) GetDrawLead() bool {
	if c.DrawLead == nil {
		return true
	}
	return *c.DrawLead
}

// GetDrawTail returns the draw_tail value or the default.
func (c *TuningConfig) GetDrawTail() bool {
	if c.DrawTail == nil {
		return true
	}
	return *c.DrawTail
}

// GetShuffle returns the shuffle value or the default.
func (c *TuningConfig) GetShuffle() uint32 {
	if c.Shuffle == nil {
		return 0
	}
	return *c.Shuffle
}

// GetCompressionLevel returns the compression_level value or the default.
func (c *TuningConfig) GetCompressionLevel() int {
	if c.CompressionLevel == nil {
		return 3 // zstd "default" speed
	}
	return *c.CompressionLevel
}

// GetAutoLinkMaxDistance returns the autolink_max_distance value or the default.
// Zero means candidate edges are accepted regardless of distance.
func (c *TuningConfig) GetAutoLinkMaxDistance() float64 {
	if c.AutoLinkMaxDistance == nil {
		return 0
	}
	return *c.AutoLinkMaxDistance
}
