package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeF32LE(values ...float32) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}
	return buf.Bytes()
}

func TestReadFloat32LE(t *testing.T) {
	data := encodeF32LE(0, 0.5, -1, 0.25)

	got, err := ReadFloat32LE(bytes.NewReader(data))

	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.5, -1, 0.25}, got)
}

func TestReadFloat32LE_IgnoresPartialValue(t *testing.T) {
	data := append(encodeF32LE(0.75), 0x01, 0x02)

	got, err := ReadFloat32LE(bytes.NewReader(data))

	require.NoError(t, err)
	assert.Equal(t, []float32{0.75}, got)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestReadFloat32LE_PropagatesReadError(t *testing.T) {
	_, err := ReadFloat32LE(failingReader{})
	assert.ErrorContains(t, err, "boom")
}

func TestDecodeError(t *testing.T) {
	err := &DecodeError{Path: "a.mp4", Stderr: "moov atom not found", Err: ErrEmptyAudio}

	assert.ErrorIs(t, err, ErrEmptyAudio)
	assert.Contains(t, err.Error(), "a.mp4")
	assert.Contains(t, err.Error(), "moov atom not found")
}

func TestNewFFmpegDecoder_Defaults(t *testing.T) {
	d := NewFFmpegDecoder("", 0)
	assert.Equal(t, "ffmpeg", d.ffmpegPath)
	assert.Equal(t, DefaultSampleRate, d.sampleRate)
}

func TestFFmpegDecoder_Decode(t *testing.T) {
	checkFFmpeg(t)

	inputPath := filepath.Join(t.TempDir(), "tone.wav")
	createTestWAV(t, inputPath, 2, [][2]float64{{1, 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	buf, err := NewFFmpegDecoder("", 8000).Decode(ctx, inputPath)
	require.NoError(t, err)

	assert.Equal(t, 8000, buf.SampleRate())
	assert.Equal(t, 1, buf.Channels())
	assert.InDelta(t, float64(2*time.Second), float64(buf.Duration()), float64(50*time.Millisecond))
}

func TestFFmpegDecoder_MissingFile(t *testing.T) {
	_, err := NewFFmpegDecoder("", 0).Decode(context.Background(), "/nonexistent/in.mp4")

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "/nonexistent/in.mp4", decodeErr.Path)
}
