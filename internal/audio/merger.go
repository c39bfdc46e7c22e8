package audio

import (
	"iter"
	"time"

	"github.com/maauso/silencecut/internal/timeline"
)

// MergeOpts configures how a classification stream becomes a silence list.
type MergeOpts struct {
	// MinSilenceMs is the shortest silent run kept as a silence interval.
	// Shorter runs are absorbed into the surrounding speech.
	MinSilenceMs int

	// MinSpeechMs is the shortest speech gap kept between two silences.
	// Shorter gaps are fused into a single silence interval.
	MinSpeechMs int

	// IncludeTrailingSilence closes a silent run that is still open when
	// the stream ends. Off by default, which drops it.
	IncludeTrailingSilence bool
}

// Merge walks a (frameIndex, isSilent) stream and returns the ordered,
// non-overlapping list of silence intervals.
//
// Phase one emits every silent run lasting at least MinSilenceMs. Phase
// two fuses consecutive silences separated by less than MinSpeechMs of
// speech. A non-positive sampleRate yields no silences.
func Merge(classes iter.Seq2[int, bool], sampleRate int, opts MergeOpts) timeline.List {
	if sampleRate <= 0 {
		return nil
	}
	raw := detectRuns(classes, sampleRate, opts)
	return fuseSpeechGaps(raw, opts.MinSpeechMs)
}

func detectRuns(classes iter.Seq2[int, bool], sampleRate int, opts MergeOpts) timeline.List {
	var (
		runs      timeline.List
		inSilence bool
		runStart  int
		frames    int
	)

	longEnough := func(start, end int) bool {
		// (end-start)*1000/sampleRate >= minSilenceMs without truncation.
		return int64(end-start)*1000 >= int64(opts.MinSilenceMs)*int64(sampleRate)
	}

	for i, silent := range classes {
		frames = i + 1
		switch {
		case silent && !inSilence:
			inSilence = true
			runStart = i
		case !silent && inSilence:
			if longEnough(runStart, i) {
				runs = append(runs, timeline.Interval{
					Start: FrameTime(runStart, sampleRate),
					End:   FrameTime(i, sampleRate),
				})
			}
			inSilence = false
		}
	}

	if inSilence && opts.IncludeTrailingSilence && longEnough(runStart, frames) {
		runs = append(runs, timeline.Interval{
			Start: FrameTime(runStart, sampleRate),
			End:   FrameTime(frames, sampleRate),
		})
	}

	return runs
}

// fuseSpeechGaps merges silences whose separating speech is shorter than
// minSpeechMs into the previously kept interval.
func fuseSpeechGaps(raw timeline.List, minSpeechMs int) timeline.List {
	if len(raw) == 0 {
		return nil
	}

	minGap := time.Duration(minSpeechMs) * time.Millisecond
	out := make(timeline.List, 0, len(raw))
	out = append(out, raw[0])
	for _, cur := range raw[1:] {
		prev := &out[len(out)-1]
		if cur.Start-prev.End < minGap {
			prev.End = cur.End
			continue
		}
		out = append(out, cur)
	}
	return out
}
