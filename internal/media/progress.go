package media

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// maxDiagnostic bounds how much non-progress stderr is retained.
const maxDiagnostic = 16 * 1024

// progressWriter consumes ffmpeg stderr written with -progress pipe:2.
// Lines of the form key=value are parsed and the rest is kept as the
// diagnostic text.
type progressWriter struct {
	onElapsed ElapsedFunc
	partial   []byte
	diag      bytes.Buffer
	last      time.Duration
}

func newProgressWriter(onElapsed ElapsedFunc) *progressWriter {
	return &progressWriter{onElapsed: onElapsed, last: -1}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.handleLine(string(bytes.TrimRight(w.partial[:i], "\r")))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// flush processes a final line that was not newline terminated.
func (w *progressWriter) flush() {
	if len(w.partial) > 0 {
		w.handleLine(string(w.partial))
		w.partial = nil
	}
}

func (w *progressWriter) handleLine(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || strings.ContainsAny(key, " \t") {
		w.keep(line)
		return
	}

	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return
		}
		w.report(time.Duration(us) * time.Microsecond)
	case "frame", "fps", "bitrate", "total_size", "out_time", "dup_frames",
		"drop_frames", "speed", "progress", "stream_0_0_q":
	default:
		if !strings.HasPrefix(key, "stream_") {
			w.keep(line)
		}
	}
}

func (w *progressWriter) report(elapsed time.Duration) {
	if elapsed <= w.last {
		return
	}
	w.last = elapsed
	if w.onElapsed != nil {
		w.onElapsed(elapsed)
	}
}

func (w *progressWriter) keep(line string) {
	if line == "" {
		return
	}
	w.diag.WriteString(line)
	w.diag.WriteByte('\n')
	if over := w.diag.Len() - maxDiagnostic; over > 0 {
		w.diag.Next(over)
	}
}

func (w *progressWriter) diagnostic() string {
	return strings.TrimSpace(w.diag.String())
}
