package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/lineage/internal/fsutil"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.GhostNum == nil || *cfg.GhostNum != 10 {
		t.Errorf("Expected GhostNum 10, got %v", cfg.GhostNum)
	}
	if cfg.DrawLead == nil || *cfg.DrawLead != true {
		t.Errorf("Expected DrawLead true, got %v", cfg.DrawLead)
	}
	if cfg.CompressionLevel == nil || *cfg.CompressionLevel != 3 {
		t.Errorf("Expected CompressionLevel 3, got %v", cfg.CompressionLevel)
	}

	if cfg.GetSizeThreshold() != 0 {
		t.Errorf("GetSizeThreshold() = %d, want 0", cfg.GetSizeThreshold())
	}
	if cfg.GetDrawTail() != true {
		t.Errorf("GetDrawTail() = %v, want true", cfg.GetDrawTail())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "lineage.json")

	testJSON := `{
  "size_threshold": 25,
  "uncertainty_threshold": 4,
  "ghost_num": 3,
  "draw_lead": false,
  "shuffle": 7,
  "compression_level": 0
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetSizeThreshold(); got != 25 {
		t.Errorf("GetSizeThreshold() = %d, want 25", got)
	}
	if got := cfg.GetUncertaintyThreshold(); got != 4 {
		t.Errorf("GetUncertaintyThreshold() = %d, want 4", got)
	}
	if got := cfg.GetGhostNum(); got != 3 {
		t.Errorf("GetGhostNum() = %d, want 3", got)
	}
	if got := cfg.GetDrawLead(); got != false {
		t.Errorf("GetDrawLead() = %v, want false", got)
	}
	if got := cfg.GetShuffle(); got != 7 {
		t.Errorf("GetShuffle() = %d, want 7", got)
	}
	if got := cfg.GetCompressionLevel(); got != 0 {
		t.Errorf("GetCompressionLevel() = %d, want 0", got)
	}

	// Omitted fields fall back to defaults.
	if got := cfg.GetDrawTail(); got != true {
		t.Errorf("GetDrawTail() = %v, want true (default)", got)
	}
	if got := cfg.GetAutoLinkMaxDistance(); got != 0 {
		t.Errorf("GetAutoLinkMaxDistance() = %f, want 0 (default)", got)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "ghost_num": "lots"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad_level.json")

	if err := os.WriteFile(configPath, []byte(`{"compression_level": 40}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected validation error for compression_level 40, got nil")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") error: %v", err)
	}
	if cfg.GetGhostNum() != 10 {
		t.Errorf("GetGhostNum() = %d, want default 10", cfg.GetGhostNum())
	}

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadOrDefault(missing) error: %v", err)
	}
	if cfg.SizeThreshold != nil {
		t.Errorf("expected empty config for missing file, got SizeThreshold=%v", *cfg.SizeThreshold)
	}

	configPath := filepath.Join(t.TempDir(), "present.json")
	if err := os.WriteFile(configPath, []byte(`{"ghost_num": 2}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	cfg, err = LoadOrDefault(configPath)
	if err != nil {
		t.Fatalf("LoadOrDefault(present) error: %v", err)
	}
	if cfg.GetGhostNum() != 2 {
		t.Errorf("GetGhostNum() = %d, want 2", cfg.GetGhostNum())
	}
}

func TestLoadTuningConfigFS(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	if err := mfs.WriteFile("/etc/lineage/tuning.json", []byte(`{"ghost_num": 4, "size_threshold": 9}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadTuningConfigFS(mfs, "/etc/lineage/tuning.json")
	if err != nil {
		t.Fatalf("LoadTuningConfigFS error: %v", err)
	}
	if cfg.GetGhostNum() != 4 || cfg.GetSizeThreshold() != 9 {
		t.Errorf("got ghost_num=%d size_threshold=%d, want 4 and 9", cfg.GetGhostNum(), cfg.GetSizeThreshold())
	}

	if err := mfs.WriteFile("/big.json", make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadTuningConfigFS(mfs, "/big.json"); err == nil {
		t.Error("expected size error for in-memory file > 1MB")
	}

	cfg, err = LoadOrDefaultFS(mfs, "/etc/lineage/absent.json")
	if err != nil {
		t.Fatalf("LoadOrDefaultFS(missing) error: %v", err)
	}
	if cfg.GhostNum != nil {
		t.Errorf("expected empty config for missing file, got GhostNum=%v", *cfg.GhostNum)
	}

	cfg, err = LoadOrDefaultFS(mfs, "/etc/lineage/tuning.json")
	if err != nil {
		t.Fatalf("LoadOrDefaultFS(present) error: %v", err)
	}
	if cfg.GetGhostNum() != 4 {
		t.Errorf("GetGhostNum() = %d, want 4", cfg.GetGhostNum())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name:    "negative ghost num",
			cfg:     &TuningConfig{GhostNum: ptrInt(-1)},
			wantErr: true,
		},
		{
			name:    "compression level too high",
			cfg:     &TuningConfig{CompressionLevel: ptrInt(23)},
			wantErr: true,
		},
		{
			name:    "negative compression level",
			cfg:     &TuningConfig{CompressionLevel: ptrInt(-2)},
			wantErr: true,
		},
		{
			name:    "negative autolink distance",
			cfg:     &TuningConfig{AutoLinkMaxDistance: ptrFloat64(-0.5)},
			wantErr: true,
		},
		{
			name:    "zero ghost num is allowed",
			cfg:     &TuningConfig{GhostNum: ptrInt(0)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
