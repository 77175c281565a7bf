package audio

import "math"

// RMS returns the root-mean-square energy of a PCM sample block in the
// native 16-bit integer range. An empty block scores 0.
//
// RMS is the loudness proxy driving the [Segmenter] thresholds; it is
// recomputed for every decoded frame and never persisted.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
