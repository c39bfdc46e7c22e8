package encoder

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Codec describes a selectable video encoder.
type Codec struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Vendor      string `json:"vendor"`
}

var catalog = []Codec{
	{ID: "libx264", DisplayName: "CPU (libx264)", Vendor: CPU.String()},
	{ID: "h264_nvenc", DisplayName: "NVIDIA NVENC H.264", Vendor: NVENC.String()},
	{ID: "hevc_nvenc", DisplayName: "NVIDIA NVENC HEVC", Vendor: NVENC.String()},
	{ID: "h264_qsv", DisplayName: "Intel Quick Sync Video", Vendor: QSV.String()},
	{ID: "hevc_qsv", DisplayName: "Intel Quick Sync HEVC", Vendor: QSV.String()},
	{ID: "h264_amf", DisplayName: "AMD AMF H.264", Vendor: AMF.String()},
	{ID: "hevc_amf", DisplayName: "AMD AMF HEVC", Vendor: AMF.String()},
}

// Codecs returns every codec the resolver knows about.
func Codecs() []Codec {
	return slices.Clone(catalog)
}

// Lister reports the encoder names compiled into the media engine.
type Lister interface {
	Encoders(ctx context.Context) ([]string, error)
}

// AvailableCodecs returns the known codecs that the engine supports.
// libx264 is always listed first.
func AvailableCodecs(ctx context.Context, engine Lister) ([]Codec, error) {
	names, err := engine.Encoders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list encoders: %w", err)
	}

	out := []Codec{catalog[0]}
	for _, c := range catalog[1:] {
		if slices.Contains(names, c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// MaxThreads returns the logical CPU count, the largest useful thread value.
func MaxThreads(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// ClampThreads limits p.Threads to limit. Zero means automatic and is kept.
func ClampThreads(p Profile, limit int) Profile {
	if limit > 0 && p.Threads > limit {
		p.Threads = limit
	}
	return p
}
