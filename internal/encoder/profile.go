// Package encoder resolves video encoder settings into ffmpeg arguments.
//
// A codec id such as "h264_nvenc" belongs to one Vendor. Each vendor has its
// own preset vocabulary and quality knob, looked up by Tier.
package encoder

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maauso/silencecut/internal/settings"
)

// Vendor is an encoder family. The set is closed.
type Vendor int

const (
	// CPU is software x264 encoding.
	CPU Vendor = iota
	// NVENC is NVIDIA hardware encoding.
	NVENC
	// QSV is Intel Quick Sync Video.
	QSV
	// AMF is AMD Advanced Media Framework.
	AMF
)

func (v Vendor) String() string {
	switch v {
	case CPU:
		return "cpu"
	case NVENC:
		return "nvenc"
	case QSV:
		return "qsv"
	case AMF:
		return "amf"
	default:
		return "vendor(" + strconv.Itoa(int(v)) + ")"
	}
}

// Tier is a user-facing quality level.
type Tier int

const (
	VeryHigh Tier = iota
	High
	Medium
	Low
)

func (t Tier) String() string {
	switch t {
	case VeryHigh:
		return "very-high"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
}

// TierFromIndex maps a persisted qualityLevelIndex to a Tier.
func TierFromIndex(i int) (Tier, bool) {
	if i < int(VeryHigh) || i > int(Low) {
		return Medium, false
	}
	return Tier(i), true
}

// Fallback values used when a vendor and tier cannot be resolved.
const (
	FallbackPreset  = "medium"
	FallbackQuality = 23
	DefaultCodec    = "libx264"
)

type presetQuality struct {
	preset  string
	quality int
}

var table = map[Vendor]map[Tier]presetQuality{
	CPU: {
		VeryHigh: {"veryslow", 6},
		High:     {"slow", 16},
		Medium:   {"medium", 23},
		Low:      {"ultrafast", 28},
	},
	NVENC: {
		VeryHigh: {"hq", 6},
		High:     {"slow", 16},
		Medium:   {"medium", 23},
		Low:      {"fast", 28},
	},
	QSV: {
		VeryHigh: {"veryslow", 6},
		High:     {"slow", 16},
		Medium:   {"medium", 23},
		Low:      {"veryfast", 28},
	},
	AMF: {
		VeryHigh: {"quality", 6},
		High:     {"balanced", 16},
		Medium:   {"speed", 23},
		Low:      {"speed", 28},
	},
}

// Resolve returns the preset and quality value for a vendor and tier. When
// the combination is not in the table it returns ("medium", 23, false).
func Resolve(v Vendor, t Tier) (preset string, quality int, ok bool) {
	pq, found := table[v][t]
	if !found {
		return FallbackPreset, FallbackQuality, false
	}
	return pq.preset, pq.quality, true
}

// ResolutionError describes a settings record that could not be fully
// resolved. It is reported but never fatal: the fallback profile is used.
type ResolutionError struct {
	Codec  string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve encoder %q: %s", e.Codec, e.Reason)
}

var codecVendors = map[string]Vendor{
	"libx264":    CPU,
	"h264_nvenc": NVENC,
	"hevc_nvenc": NVENC,
	"h264_qsv":   QSV,
	"hevc_qsv":   QSV,
	"h264_amf":   AMF,
	"hevc_amf":   AMF,
}

// VendorOf returns the vendor family of a codec id.
func VendorOf(codec string) (Vendor, bool) {
	v, ok := codecVendors[strings.ToLower(strings.TrimSpace(codec))]
	return v, ok
}

// Profile is a fully resolved set of encoder parameters. It is a value and
// is not modified after construction.
type Profile struct {
	Codec   string `json:"codec"`
	Vendor  Vendor `json:"-"`
	Preset  string `json:"preset"`
	Quality int    `json:"quality"`
	// TargetFPS is nil to keep the source frame rate.
	TargetFPS *int `json:"target_fps,omitempty"`
	// Threads is 0 to let ffmpeg decide.
	Threads int `json:"threads"`
}

// DefaultProfile is CPU encoding at medium quality.
func DefaultProfile() Profile {
	preset, quality, _ := Resolve(CPU, Medium)
	return Profile{Codec: DefaultCodec, Vendor: CPU, Preset: preset, Quality: quality}
}

// New resolves a profile for a codec id and tier. Unknown codecs fall back
// to libx264 and unknown tiers to the medium entry; both are reported as a
// *ResolutionError alongside a usable profile.
func New(codec string, tier Tier) (Profile, error) {
	var resErr error

	vendor, ok := VendorOf(codec)
	if !ok {
		resErr = &ResolutionError{Codec: codec, Reason: "unknown codec, using " + DefaultCodec}
		codec, vendor = DefaultCodec, CPU
	}

	preset, quality, ok := Resolve(vendor, tier)
	if !ok && resErr == nil {
		resErr = &ResolutionError{Codec: codec, Reason: "no entry for tier " + tier.String()}
	}

	return Profile{
		Codec:   strings.ToLower(strings.TrimSpace(codec)),
		Vendor:  vendor,
		Preset:  preset,
		Quality: quality,
	}, resErr
}

// FromSettings builds a Profile from persisted settings. Preset and quality
// always come from VideoEncoder and QualityLevelIndex; stored Preset and CRF
// values that disagree are logged and ignored. Resolution problems are
// logged as warnings and never returned.
func FromSettings(s settings.Settings, logger *slog.Logger) Profile {
	if logger == nil {
		logger = slog.Default()
	}

	tier, ok := TierFromIndex(s.QualityLevelIndex)
	if !ok {
		logger.Warn("quality level out of range, using medium",
			slog.Int("quality_level_index", s.QualityLevelIndex),
		)
	}

	codec := s.VideoEncoder
	if codec == "" {
		codec = DefaultCodec
	}

	p, err := New(codec, tier)
	if err != nil {
		logger.Warn("encoder settings fallback",
			slog.String("error", err.Error()),
			slog.String("codec", p.Codec),
			slog.String("preset", p.Preset),
			slog.Int("quality", p.Quality),
		)
	} else if (s.Preset != "" && s.Preset != p.Preset) || (s.CRF != 0 && s.CRF != p.Quality) {
		logger.Warn("settings preset and crf ignored, derived from encoder and quality level",
			slog.String("codec", p.Codec),
			slog.String("file_preset", s.Preset),
			slog.Int("file_crf", s.CRF),
			slog.String("preset", p.Preset),
			slog.Int("quality", p.Quality),
		)
	}

	if s.TargetFPS != nil && *s.TargetFPS > 0 {
		fps := *s.TargetFPS
		p.TargetFPS = &fps
	}
	if s.Threads > 0 {
		p.Threads = s.Threads
	}
	return p
}
