// Package ui provides the Bubbletea terminal interface for the cut command.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// FileStatus represents the processing state of a single file.
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusAnalyzing
	StatusEncoding
	StatusComplete
	StatusError
)

// FileProgress tracks progress for a single video.
type FileProgress struct {
	InputPath  string
	OutputPath string
	Status     FileStatus

	Progress  float64 // 0 to 100
	StartTime time.Time
	Elapsed   time.Duration

	Duration     time.Duration
	Kept         time.Duration
	SilenceCount int
	SegmentCount int

	Error error
}

// Removed returns how much time the cut took out.
func (fp FileProgress) Removed() time.Duration {
	return fp.Duration - fp.Kept
}

// Model is the Bubbletea model for the cut command.
type Model struct {
	Files          []FileProgress
	CurrentIndex   int
	CompletedFiles int
	FailedFiles    int

	StartTime time.Time
	Done      bool
	Cancelled bool

	// cancel stops the processing goroutine when the user quits.
	cancel func()

	Width  int
	Height int
}

// NewModel creates a model for inputFiles. cancel, if set, is called when
// the user quits before processing finishes.
func NewModel(inputFiles []string, cancel func()) Model {
	files := make([]FileProgress, len(inputFiles))
	for i, path := range inputFiles {
		files[i] = FileProgress{InputPath: path, Status: StatusQueued}
	}
	return Model{
		Files:        files,
		CurrentIndex: -1,
		StartTime:    time.Now(),
		cancel:       cancel,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.Done && m.cancel != nil {
				m.cancel()
			}
			m.Cancelled = !m.Done
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case FileStartMsg:
		if msg.FileIndex < 0 || msg.FileIndex >= len(m.Files) {
			return m, nil
		}
		m.CurrentIndex = msg.FileIndex
		m.Files[msg.FileIndex].Status = StatusAnalyzing
		m.Files[msg.FileIndex].StartTime = time.Now()

	case ProgressMsg:
		if m.CurrentIndex < 0 || m.CurrentIndex >= len(m.Files) {
			return m, nil
		}
		fp := &m.Files[m.CurrentIndex]
		fp.Status = StatusEncoding
		if msg.Percent > fp.Progress {
			fp.Progress = min(msg.Percent, 100)
		}
		fp.Elapsed = time.Since(fp.StartTime)

	case FileCompleteMsg:
		if msg.FileIndex < 0 || msg.FileIndex >= len(m.Files) {
			return m, nil
		}
		fp := &m.Files[msg.FileIndex]
		fp.Elapsed = time.Since(fp.StartTime)
		fp.OutputPath = msg.OutputPath
		fp.Duration = msg.Duration
		fp.Kept = msg.Kept
		fp.SilenceCount = msg.SilenceCount
		fp.SegmentCount = msg.SegmentCount
		fp.Error = msg.Error
		if msg.Error != nil {
			fp.Status = StatusError
			m.FailedFiles++
		} else {
			fp.Status = StatusComplete
			fp.Progress = 100
			m.CompletedFiles++
		}

	case AllCompleteMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}
