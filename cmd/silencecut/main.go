// Package main provides the silencecut command-line tool.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/alecthomas/kong"

	"github.com/maauso/silencecut/internal/cli"
	"github.com/maauso/silencecut/internal/config"
	"github.com/maauso/silencecut/internal/settings"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version information."`
	LogFile string           `type:"path" help:"Write logs to this file instead of stderr."`

	Cut      CutCmd      `cmd:"" help:"Remove silent stretches from one or more videos."`
	Detect   DetectCmd   `cmd:"" help:"Print the silences and keep ranges of a video without cutting it."`
	Encoders EncodersCmd `cmd:"" help:"List the video encoders the local ffmpeg supports."`
	Settings SettingsCmd `cmd:"" help:"Show or change the persisted encoder settings."`
	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API."`
}

// App carries what every command needs.
type App struct {
	Config *config.Config
	// logOut is where logs go unless a command redirects them.
	logOut io.Writer
}

// Logger returns a logger writing to the configured destination.
func (a *App) Logger() *slog.Logger {
	return a.Config.NewLoggerTo(a.logOut)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		cli.PrintError(fmt.Sprintf("load config: %v", err))
		os.Exit(1)
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = defaultSettingsPath()
	}

	vars := detectionVars(cfg)
	vars["version"] = version

	var args CLI
	ctx := kong.Parse(&args,
		kong.Name("silencecut"),
		kong.Description("Cut the silence out of talking-head videos."),
		kong.UsageOnError(),
		vars,
		kong.Help(cli.StyledHelpPrinter("Cut the silence out of talking-head videos")),
	)

	app := &App{Config: cfg, logOut: os.Stderr}
	if args.LogFile != "" {
		f, err := os.OpenFile(args.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 - path given on the command line
		if err != nil {
			cli.PrintError(fmt.Sprintf("open log file: %v", err))
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		app.logOut = f
	}

	if err := ctx.Run(app); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// detectionVars exposes the environment defaults to the flag definitions.
func detectionVars(cfg *config.Config) kong.Vars {
	return kong.Vars{
		"threshold_db":             strconv.FormatFloat(cfg.SilenceThresholdDB, 'g', -1, 64),
		"min_silence_ms":           strconv.Itoa(cfg.MinSilenceMs),
		"min_speech_ms":            strconv.Itoa(cfg.MinSpeechMs),
		"include_trailing_silence": strconv.FormatBool(cfg.IncludeTrailingSilence),
		"include_trailing_keep":    strconv.FormatBool(cfg.IncludeTrailingKeep),
	}
}

// defaultSettingsPath is the per-user settings file, or the working
// directory when the user config dir is unknown.
func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return settings.DefaultFileName
	}
	return filepath.Join(dir, "silencecut", settings.DefaultFileName)
}
