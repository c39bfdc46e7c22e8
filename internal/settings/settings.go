// Package settings persists the user's encoder preferences.
//
// The record is stored as JSON by default. Files ending in .yaml or .yml are
// read and written as YAML instead.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the name used when only a directory is configured.
const DefaultFileName = "video_settings.json"

// ErrInvalidSettings is returned when a loaded or saved record fails validation.
var ErrInvalidSettings = errors.New("invalid encoder settings")

// Settings is the persisted encoder preference record.
//
// Preset and CRF are derived from VideoEncoder and QualityLevelIndex when
// the record is saved, and are kept for tools that read the file directly.
type Settings struct {
	Preset            string `json:"preset" yaml:"preset"`
	CRF               int    `json:"crf" yaml:"crf" validate:"min=0,max=63"`
	Threads           int    `json:"threads" yaml:"threads" validate:"min=0,max=1024"`
	TargetFPS         *int   `json:"targetFps" yaml:"targetFps" validate:"omitempty,min=1,max=240"`
	VideoEncoder      string `json:"videoEncoder" yaml:"videoEncoder"`
	QualityLevelIndex int    `json:"qualityLevelIndex" yaml:"qualityLevelIndex" validate:"min=0,max=3"`
}

// Defaults returns the record used when no settings file exists:
// CPU encoding, medium quality, automatic threads and 30 fps.
func Defaults() Settings {
	fps := 30
	return Settings{
		Preset:            "medium",
		CRF:               23,
		Threads:           0,
		TargetFPS:         &fps,
		VideoEncoder:      "libx264",
		QualityLevelIndex: 2,
	}
}

var validate = validator.New()

// Validate checks field ranges.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// Load reads settings from path. A missing file yields Defaults with no
// error. Fields absent from the file keep their default values.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &s)
	} else {
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return Defaults(), fmt.Errorf("parse settings %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return Defaults(), err
	}
	return s, nil
}

// Save writes s to path, creating parent directories as needed.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
