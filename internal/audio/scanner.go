package audio

import (
	"iter"
	"math"
)

// dbEpsilon keeps log10 finite on digital silence.
const dbEpsilon = 1e-10

// PeakDB returns the peak absolute amplitude of a frame in decibels.
// There is no floor: very quiet frames yield large negative values.
func PeakDB(frame []float32) float64 {
	var peak float64
	for _, s := range frame {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return 20 * math.Log10(peak+dbEpsilon)
}

// Scan classifies every frame of buf as silent or not. A frame is silent
// when its peak level is strictly below thresholdDB. The sequence is lazy
// and each frame is classified independently of its neighbours.
func Scan(buf *Buffer, thresholdDB float64) iter.Seq2[int, bool] {
	return func(yield func(int, bool) bool) {
		n := buf.Frames()
		for i := 0; i < n; i++ {
			if !yield(i, PeakDB(buf.frame(i)) < thresholdDB) {
				return
			}
		}
	}
}
