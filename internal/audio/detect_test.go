package audio

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/silencecut/internal/timeline"
)

const testRate = 1000

type span struct {
	seconds float64
	amp     float32
}

// synth builds a mono buffer from consecutive spans of constant amplitude.
func synth(t *testing.T, spans ...span) *Buffer {
	t.Helper()
	var samples []float32
	for _, s := range spans {
		n := int(s.seconds*testRate + 0.5)
		for i := 0; i < n; i++ {
			samples = append(samples, s.amp)
		}
	}
	buf, err := NewBuffer(samples, testRate, 1)
	require.NoError(t, err)
	return buf
}

func TestDetect_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		buf  func(t *testing.T) *Buffer
		opts func(DetectOpts) DetectOpts
		want timeline.List
	}{
		{
			name: "silence around a loud block",
			buf: func(t *testing.T) *Buffer {
				return synth(t, span{3, 0}, span{2, 0.5}, span{5, 0})
			},
			opts: func(o DetectOpts) DetectOpts { o.IncludeTrailingSilence = true; return o },
			want: timeline.List{{Start: 0, End: 3 * time.Second}, {Start: 5 * time.Second, End: 10 * time.Second}},
		},
		{
			name: "trailing silence dropped by default",
			buf: func(t *testing.T) *Buffer {
				return synth(t, span{3, 0}, span{2, 0.5}, span{5, 0})
			},
			want: timeline.List{{Start: 0, End: 3 * time.Second}},
		},
		{
			name: "short speech fused into one silence",
			buf: func(t *testing.T) *Buffer {
				return synth(t, span{3, 0}, span{0.3, 0.5}, span{7, 0})
			},
			opts: func(o DetectOpts) DetectOpts { o.IncludeTrailingSilence = true; return o },
			want: timeline.List{{Start: 0, End: 10300 * time.Millisecond}},
		},
		{
			name: "short silence ignored",
			buf: func(t *testing.T) *Buffer {
				return synth(t, span{1, 0.5}, span{0.4, 0}, span{1, 0.5})
			},
			want: nil,
		},
		{
			name: "all speech",
			buf: func(t *testing.T) *Buffer {
				return synth(t, span{5, 0.8})
			},
			want: nil,
		},
		{
			name: "all silence with trailing flag",
			buf: func(t *testing.T) *Buffer {
				return synth(t, span{4, 0})
			},
			opts: func(o DetectOpts) DetectOpts { o.IncludeTrailingSilence = true; return o },
			want: timeline.List{{Start: 0, End: 4 * time.Second}},
		},
		{
			name: "quiet but above threshold is speech",
			buf: func(t *testing.T) *Buffer {
				// 0.02 is about -34 dBFS
				return synth(t, span{1, 0.5}, span{2, 0.02}, span{1, 0.5})
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultDetectOpts()
			if tt.opts != nil {
				opts = tt.opts(opts)
			}
			got := Detect(tt.buf(t), opts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_MinSilenceBoundaryIsInclusive(t *testing.T) {
	buf := synth(t, span{1, 0.5}, span{0.7, 0}, span{1, 0.5})

	got := Detect(buf, DefaultDetectOpts())

	require.Len(t, got, 1)
	assert.Equal(t, time.Second, got[0].Start)
	assert.Equal(t, 1700*time.Millisecond, got[0].End)
}

func randomBuffer(t *testing.T, seed int64, seconds int) *Buffer {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var spans []span
	for total := 0.0; total < float64(seconds); {
		d := 0.1 + rng.Float64()*1.5
		amp := float32(0)
		if rng.Intn(2) == 0 {
			amp = 0.05 + rng.Float32()*0.9
		}
		spans = append(spans, span{d, amp})
		total += d
	}
	return synth(t, spans...)
}

func TestDetect_Properties(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		buf := randomBuffer(t, seed, 30)
		opts := DefaultDetectOpts()
		opts.IncludeTrailingSilence = seed%2 == 0

		first := Detect(buf, opts)
		second := Detect(buf, opts)

		assert.Equal(t, first, second, "seed %d: detection must be repeatable on the same buffer", seed)
		assert.NoError(t, first.Validate(), "seed %d: silences must be ordered and disjoint", seed)
		for _, iv := range first {
			assert.GreaterOrEqual(t, iv.Duration(), 700*time.Millisecond, "seed %d", seed)
			assert.LessOrEqual(t, iv.End, buf.Duration(), "seed %d", seed)
		}
	}
}

// Raising MinSilenceMs can only remove runs. This holds for run detection
// alone; with speech-gap fusion a dropped run can split a fused interval.
func TestDetect_MinSilenceMonotonic(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		buf := randomBuffer(t, seed, 30)

		loose := DefaultDetectOpts()
		loose.MinSpeechMs = 0
		loose.MinSilenceMs = 300
		strict := loose
		strict.MinSilenceMs = 900

		all := Detect(buf, loose)
		fewer := Detect(buf, strict)

		assert.LessOrEqual(t, len(fewer), len(all), "seed %d", seed)
		for _, iv := range fewer {
			assert.Contains(t, all, iv, "seed %d", seed)
		}
	}
}

func TestScan(t *testing.T) {
	buf, err := NewBuffer([]float32{0, 0.5, 0.001, -0.9}, testRate, 1)
	require.NoError(t, err)

	var got []bool
	for i, silent := range Scan(buf, -40) {
		assert.Equal(t, len(got), i)
		got = append(got, silent)
	}

	assert.Equal(t, []bool{true, false, true, false}, got)
}

func TestScan_StopsEarly(t *testing.T) {
	buf := synth(t, span{1, 0})

	count := 0
	for range Scan(buf, -40) {
		count++
		if count == 5 {
			break
		}
	}
	assert.Equal(t, 5, count)
}

func TestScan_UsesPeakAcrossChannels(t *testing.T) {
	// Left channel silent, right channel loud.
	buf, err := NewBuffer([]float32{0, 0.5, 0, 0}, testRate, 2)
	require.NoError(t, err)

	var got []bool
	for _, silent := range Scan(buf, -40) {
		got = append(got, silent)
	}
	assert.Equal(t, []bool{false, true}, got)
}

func TestPeakDB(t *testing.T) {
	assert.InDelta(t, 0, PeakDB([]float32{1}), 1e-6)
	assert.InDelta(t, -6.0206, PeakDB([]float32{0.5, -0.25}), 1e-3)
	assert.InDelta(t, -6.0206, PeakDB([]float32{-0.5}), 1e-3)
	assert.Less(t, PeakDB([]float32{0}), -190.0)
}

func TestNewBuffer(t *testing.T) {
	t.Run("drops partial frame", func(t *testing.T) {
		buf, err := NewBuffer([]float32{0, 0, 0, 0, 0}, 8000, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, buf.Frames())
	})

	t.Run("rejects bad sample rate", func(t *testing.T) {
		_, err := NewBuffer([]float32{0}, 0, 1)
		assert.ErrorIs(t, err, ErrInvalidSampleRate)
	})

	t.Run("rejects bad channel count", func(t *testing.T) {
		_, err := NewBuffer([]float32{0}, 8000, 0)
		assert.ErrorIs(t, err, ErrInvalidChannels)
	})

	t.Run("rejects empty audio", func(t *testing.T) {
		_, err := NewBuffer(nil, 8000, 1)
		assert.ErrorIs(t, err, ErrEmptyAudio)
	})

	t.Run("duration", func(t *testing.T) {
		buf, err := NewBuffer(make([]float32, 44100*3/2), 44100, 1)
		require.NoError(t, err)
		assert.Equal(t, 1500*time.Millisecond, buf.Duration())
	})
}

func TestFrameTime(t *testing.T) {
	assert.Equal(t, time.Duration(0), FrameTime(0, 44100))
	assert.Equal(t, time.Second, FrameTime(44100, 44100))
	assert.Equal(t, 500*time.Millisecond, FrameTime(22050, 44100))
	// Ten hours at 48kHz.
	assert.Equal(t, 10*time.Hour, FrameTime(48000*36000, 48000))
}

type stubDecoder struct {
	buf *Buffer
	err error
}

func (s *stubDecoder) Decode(context.Context, string) (*Buffer, error) {
	return s.buf, s.err
}

func TestSampleDetector(t *testing.T) {
	buf := synth(t, span{1, 0.5}, span{1, 0}, span{1, 0.5})
	detector := NewSampleDetector(&stubDecoder{buf: buf})

	got, err := detector.DetectSilences(context.Background(), "in.mp4", DefaultDetectOpts())

	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, got.Duration)
	assert.Equal(t, timeline.List{{Start: time.Second, End: 2 * time.Second}}, got.Silences)
}

func TestSampleDetector_DecodeError(t *testing.T) {
	decodeErr := &DecodeError{Path: "in.mp4", Err: ErrEmptyAudio}
	detector := NewSampleDetector(&stubDecoder{err: decodeErr})

	_, err := detector.DetectSilences(context.Background(), "in.mp4", DefaultDetectOpts())

	var target *DecodeError
	require.True(t, errors.As(err, &target))
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestMerge_InvalidSampleRate(t *testing.T) {
	buf := synth(t, span{2, 0}, span{1, 0.5})
	opts := MergeOpts{MinSilenceMs: 100, IncludeTrailingSilence: true}

	for _, rate := range []int{0, -44100} {
		assert.NotPanics(t, func() {
			assert.Empty(t, Merge(Scan(buf, -40), rate, opts))
		}, "rate %d", rate)
	}
	assert.Len(t, Merge(Scan(buf, -40), testRate, opts), 1)
}
