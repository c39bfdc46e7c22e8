package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maauso/silencecut/internal/bootstrap"
	"github.com/maauso/silencecut/internal/cli"
	"github.com/maauso/silencecut/internal/job"
	"github.com/maauso/silencecut/internal/ui"
)

// CutCmd cuts the silence out of each file in turn.
type CutCmd struct {
	DetectionFlags `embed:""`

	Files  []string `arg:"" name:"files" type:"existingfile" help:"Videos to cut."`
	Output string   `short:"o" type:"path" help:"Output file. Only valid with a single input."`
	Codec  string   `help:"Video encoder for this run. Overrides the saved settings."`
	PushS3 bool     `name:"push-s3" help:"Upload the result to the configured S3 bucket."`
	Plain  bool     `help:"Print plain progress lines instead of the interactive view."`
}

var errOutputWithMany = errors.New("--output can only be used with a single input file")

// reporter receives the progress of a cut run.
type reporter interface {
	start(index int, path string)
	progress(percent float64)
	done(index int, j *job.Job, err error)
}

// Run implements the cut command.
func (c *CutCmd) Run(app *App) error {
	if c.Output != "" && len(c.Files) > 1 {
		return errOutputWithMany
	}
	params, err := c.params()
	if err != nil {
		return err
	}

	// the interactive view owns the terminal, so logs go to the log file only
	logOut := app.logOut
	if !c.Plain && logOut == os.Stderr {
		logOut = io.Discard
	}
	deps, err := bootstrap.NewDependencies(app.Config, app.Config.NewLoggerTo(logOut))
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.Plain {
		failed := c.process(ctx, deps.Service, params, &plainReporter{out: os.Stdout})
		return failures(failed, len(c.Files))
	}

	program := tea.NewProgram(ui.NewModel(c.Files, cancel))
	results := make(chan int, 1)
	go func() {
		results <- c.process(ctx, deps.Service, params, &teaReporter{p: program})
		program.Send(ui.AllCompleteMsg{})
	}()

	final, err := program.Run()
	if err != nil {
		cancel()
		return fmt.Errorf("UI error: %w", err)
	}
	failed := <-results
	if m, ok := final.(ui.Model); ok && m.Cancelled {
		return context.Canceled
	}
	return failures(failed, len(c.Files))
}

// process cuts every file and returns how many failed. It stops early when
// ctx is cancelled.
func (c *CutCmd) process(ctx context.Context, svc *job.Service, params job.Params, r reporter) int {
	failed := 0
	for i, path := range c.Files {
		if ctx.Err() != nil {
			return failed + len(c.Files) - i
		}
		r.start(i, path)

		progress := make(chan float64)
		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			for pct := range progress {
				r.progress(pct)
			}
		}()

		j, err := svc.Process(ctx, job.CutInput{
			SourcePath: path,
			OutputPath: c.Output,
			Params:     &params,
			Codec:      c.Codec,
			PushToS3:   c.PushS3,
		}, progress)
		close(progress)
		<-forwarded

		if err != nil {
			failed++
		}
		r.done(i, j, err)
	}
	return failed
}

func failures(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d file(s) failed", failed, total)
}

// teaReporter forwards progress to the interactive view.
type teaReporter struct {
	p *tea.Program
}

func (r *teaReporter) start(index int, path string) {
	r.p.Send(ui.FileStartMsg{FileIndex: index, FileName: path})
}

func (r *teaReporter) progress(percent float64) {
	r.p.Send(ui.ProgressMsg{Percent: percent})
}

func (r *teaReporter) done(index int, j *job.Job, err error) {
	r.p.Send(completeMsg(index, j, err))
}

func completeMsg(index int, j *job.Job, err error) ui.FileCompleteMsg {
	msg := ui.FileCompleteMsg{FileIndex: index, Error: err}
	if j != nil {
		msg.OutputPath = j.OutputPath
		msg.Duration = j.SourceDuration
		msg.Kept = j.KeptDuration()
		msg.SilenceCount = len(j.Silences)
		msg.SegmentCount = j.SegmentCount
	}
	return msg
}

// plainReporter prints one line per event.
type plainReporter struct {
	out  io.Writer
	last int
}

func (r *plainReporter) start(_ int, path string) {
	r.last = -1
	fmt.Fprintf(r.out, "%s %s\n", cli.KeyStyle.Render("cutting"), filepath.Base(path))
}

func (r *plainReporter) progress(percent float64) {
	// one line per 10%
	if step := int(percent) / 10; step > r.last {
		r.last = step
		fmt.Fprintf(r.out, "  %3d%%\n", step*10)
	}
}

func (r *plainReporter) done(index int, j *job.Job, err error) {
	if err != nil {
		fmt.Fprintf(r.out, "  %s %v\n", cli.ErrorStyle.Render("failed:"), err)
		return
	}
	msg := completeMsg(index, j, nil)
	fmt.Fprintf(r.out, "  %s %s (%d silences, %s → %s)\n",
		cli.ValueStyle.Render("wrote"),
		msg.OutputPath,
		msg.SilenceCount,
		cli.FormatClock(msg.Duration),
		cli.FormatClock(msg.Kept),
	)
}
