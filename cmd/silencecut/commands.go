package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/silencecut/internal/bootstrap"
	"github.com/maauso/silencecut/internal/cli"
	"github.com/maauso/silencecut/internal/encoder"
	"github.com/maauso/silencecut/internal/job"
	"github.com/maauso/silencecut/internal/media"
	"github.com/maauso/silencecut/internal/settings"
	"github.com/maauso/silencecut/internal/timeline"
)

// DetectionFlags are the tuning flags shared by cut and detect. Their
// defaults come from the environment configuration.
type DetectionFlags struct {
	ThresholdDB            float64 `name:"threshold-db" default:"${threshold_db}" help:"Peak level in dBFS below which audio counts as silence."`
	MinSilenceMs           int     `name:"min-silence-ms" default:"${min_silence_ms}" help:"Shortest silence that is cut."`
	MinSpeechMs            int     `name:"min-speech-ms" default:"${min_speech_ms}" help:"Shortest speech kept between two silences."`
	IncludeTrailingSilence bool    `negatable:"" default:"${include_trailing_silence}" help:"Also cut silence that runs to the end of the file."`
	IncludeTrailingKeep    bool    `negatable:"" default:"${include_trailing_keep}" help:"Keep the audio after the last silence."`
}

var errThresholdRange = errors.New("threshold must be between -120 and 0 dB")

// params converts the flags into job parameters.
func (f DetectionFlags) params() (job.Params, error) {
	if f.ThresholdDB < -120 || f.ThresholdDB > 0 {
		return job.Params{}, fmt.Errorf("%w, got %g", errThresholdRange, f.ThresholdDB)
	}
	if f.MinSilenceMs < 0 || f.MinSpeechMs < 0 {
		return job.Params{}, errors.New("durations must not be negative")
	}
	return job.Params{
		ThresholdDB:            f.ThresholdDB,
		MinSilenceMs:           f.MinSilenceMs,
		MinSpeechMs:            f.MinSpeechMs,
		IncludeTrailingSilence: f.IncludeTrailingSilence,
		IncludeTrailingKeep:    f.IncludeTrailingKeep,
	}, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// DetectCmd previews detection for one file.
type DetectCmd struct {
	DetectionFlags `embed:""`

	File string `arg:"" type:"existingfile" help:"Video to analyse."`
	JSON bool   `help:"Print the result as JSON."`
}

type detectOutput struct {
	File            string       `json:"file"`
	DurationSeconds float64      `json:"duration_seconds"`
	KeptSeconds     float64      `json:"kept_seconds"`
	Silences        [][2]float64 `json:"silences"`
	Keeps           [][2]float64 `json:"keeps"`
}

func secondsPairs(l timeline.List) [][2]float64 {
	out := make([][2]float64, len(l))
	for i, iv := range l {
		out[i] = [2]float64{iv.Start.Seconds(), iv.End.Seconds()}
	}
	return out
}

// Run implements the detect command.
func (c *DetectCmd) Run(app *App) error {
	params, err := c.params()
	if err != nil {
		return err
	}
	deps, err := bootstrap.NewDependencies(app.Config, app.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	ctx, stop := signalContext()
	defer stop()

	preview, err := deps.Service.Preview(ctx, c.File, params)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detectOutput{
			File:            c.File,
			DurationSeconds: preview.Duration.Seconds(),
			KeptSeconds:     preview.Keeps.Total().Seconds(),
			Silences:        secondsPairs(preview.Silences),
			Keeps:           secondsPairs(preview.Keeps),
		})
	}

	kept := preview.Keeps.Total()
	cli.PrintKV(os.Stdout, "File", c.File)
	cli.PrintKV(os.Stdout, "Duration", cli.FormatClock(preview.Duration))
	cli.PrintKV(os.Stdout, "Kept", cli.FormatClock(kept))
	cli.PrintKV(os.Stdout, "Removed", cli.FormatClock(preview.Duration-kept))
	fmt.Println()
	cli.PrintIntervals(os.Stdout, "Silences", preview.Silences)
	cli.PrintIntervals(os.Stdout, "Keeps", preview.Keeps)
	return nil
}

// EncodersCmd lists usable encoders.
type EncodersCmd struct{}

// Run implements the encoders command.
func (c *EncodersCmd) Run(app *App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine := media.NewFFmpegEngine(app.Config.FFmpegPath, media.WithFFprobePath(app.Config.FFprobePath))
	codecs, err := encoder.AvailableCodecs(ctx, engine)
	if err != nil {
		return err
	}

	prefs, err := settings.Load(app.Config.SettingsPath)
	if err != nil {
		prefs = settings.Defaults()
	}

	fmt.Println(cli.TitleStyle.Render("Encoders"))
	for _, c := range codecs {
		marker := " "
		if c.ID == prefs.VideoEncoder {
			marker = "*"
		}
		fmt.Printf(" %s %-12s %s\n", marker, c.ID, cli.KeyStyle.Render(c.DisplayName))
	}
	fmt.Println()
	cli.PrintKV(os.Stdout, "Threads", encoder.MaxThreads(ctx))
	return nil
}

// SettingsCmd shows or updates the persisted encoder settings.
type SettingsCmd struct {
	Encoder string `help:"Video encoder id, e.g. libx264 or h264_nvenc."`
	Quality *int   `help:"Quality level: 0 very high, 1 high, 2 medium, 3 low."`
	Threads *int   `help:"Encoder threads, 0 for automatic."`
	FPS     *int   `name:"fps" help:"Target frame rate, 0 keeps the source rate."`
}

func (c *SettingsCmd) changed() bool {
	return c.Encoder != "" || c.Quality != nil || c.Threads != nil || c.FPS != nil
}

// apply overlays the flags on s and re-derives preset and CRF.
func (c *SettingsCmd) apply(s settings.Settings) (settings.Settings, error) {
	if c.Encoder != "" {
		if _, ok := encoder.VendorOf(c.Encoder); !ok {
			return s, fmt.Errorf("unknown encoder %q", c.Encoder)
		}
		s.VideoEncoder = c.Encoder
	}
	if c.Quality != nil {
		s.QualityLevelIndex = *c.Quality
	}
	if c.Threads != nil {
		s.Threads = *c.Threads
	}
	if c.FPS != nil {
		if *c.FPS == 0 {
			s.TargetFPS = nil
		} else {
			fps := *c.FPS
			s.TargetFPS = &fps
		}
	}

	tier, ok := encoder.TierFromIndex(s.QualityLevelIndex)
	if !ok {
		return s, fmt.Errorf("quality must be between 0 and 3, got %d", s.QualityLevelIndex)
	}
	p, err := encoder.New(s.VideoEncoder, tier)
	if err != nil {
		return s, err
	}
	s.Preset = p.Preset
	s.CRF = p.Quality
	return s, nil
}

// Run implements the settings command.
func (c *SettingsCmd) Run(app *App) error {
	path := app.Config.SettingsPath
	current, err := settings.Load(path)
	if err != nil {
		return err
	}

	if c.changed() {
		current, err = c.apply(current)
		if err != nil {
			return err
		}
		if err := settings.Save(path, current); err != nil {
			return err
		}
	}

	fps := "source"
	if current.TargetFPS != nil {
		fps = fmt.Sprint(*current.TargetFPS)
	}
	cli.PrintKV(os.Stdout, "File", path)
	cli.PrintKV(os.Stdout, "Encoder", current.VideoEncoder)
	cli.PrintKV(os.Stdout, "Quality", current.QualityLevelIndex)
	cli.PrintKV(os.Stdout, "Preset", current.Preset)
	cli.PrintKV(os.Stdout, "CRF", current.CRF)
	cli.PrintKV(os.Stdout, "Threads", current.Threads)
	cli.PrintKV(os.Stdout, "FPS", fps)
	return nil
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Port int `help:"Port to listen on. Overrides PORT."`
}

// Run implements the serve command.
func (c *ServeCmd) Run(app *App) error {
	if c.Port > 0 {
		app.Config.Port = c.Port
	}
	logger := app.Logger()
	logger.Info("starting silencecut API", slog.String("config", app.Config.String()))

	ctx, stop := signalContext()
	defer stop()
	return bootstrap.Serve(ctx, app.Config, logger)
}
