// Package stt defines the speech-to-text provider interface.
//
// A Recognizer turns one complete, already-segmented utterance into text.
// Segmentation happens upstream: the audio pipeline hands over normalised
// float32 mono samples only once an utterance has ended, so recognizers
// never deal with streaming or partial results.
package stt

import "context"

// Recognizer transcribes one utterance.
//
// Implementations must be safe for concurrent use; one shared recognizer
// handle serves every connection.
type Recognizer interface {
	// Recognize transcribes samples (16 kHz mono float32 in [-1, 1]) and
	// returns the text with surrounding whitespace preserved as the engine
	// produced it. An error means no usable transcription; callers suppress
	// the utterance rather than surfacing the failure to the device.
	Recognize(ctx context.Context, samples []float32) (string, error)

	// Close releases any resources held by the recognizer, such as a loaded
	// model. The recognizer must not be used afterwards.
	Close() error
}
