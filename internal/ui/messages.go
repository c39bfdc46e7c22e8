package ui

import "time"

// ProgressMsg is an encoding progress update for the current file.
type ProgressMsg struct {
	Percent float64 // 0 to 100
}

// FileStartMsg indicates a new file has started processing.
type FileStartMsg struct {
	FileIndex int
	FileName  string
}

// FileCompleteMsg indicates a file has finished processing.
type FileCompleteMsg struct {
	FileIndex    int
	OutputPath   string
	Duration     time.Duration
	Kept         time.Duration
	SilenceCount int
	SegmentCount int
	Error        error
}

// AllCompleteMsg indicates all files have been processed.
type AllCompleteMsg struct{}
