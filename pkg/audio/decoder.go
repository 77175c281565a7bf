// Package audio implements the per-connection audio ingestion pipeline:
// Opus frame decoding, RMS energy measurement, and voice-activity
// segmentation of the continuous stream into discrete utterances.
//
// The pipeline is deliberately split into three small pieces so each can be
// tested in isolation from I/O: [Decoder] turns compressed frames into PCM
// blocks, [RMS] scores a block's loudness, and [Segmenter] owns all mutable
// voice-activity state behind a single Ingest entry point.
package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Devices stream Opus-compressed audio at a fixed rate and channel layout.
const (
	// SampleRate is the only supported sample rate, in Hz.
	SampleRate = 16000

	// Channels is the only supported channel count (mono).
	Channels = 1

	// MaxFrameSamples is the largest admissible decoded frame: 360 ms at
	// 16 kHz mono. Larger packets fail to decode rather than truncate.
	MaxFrameSamples = 5760
)

// Decoder decodes compressed Opus frames into 16-bit PCM sample blocks.
//
// The underlying Opus decoder carries continuity state across consecutive
// frames of one stream, so each connection needs its own Decoder. Forward
// error correction is disabled; a lost or corrupt frame is simply dropped
// by the caller and decoding resumes on the next frame.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder creates a Decoder for the fixed 16 kHz mono stream format.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode decodes one compressed frame and returns the PCM samples it
// carried, at most [MaxFrameSamples]. A malformed or unsupported frame
// returns an error and leaves the decoder usable for subsequent frames.
func (d *Decoder) Decode(frame []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(frame, MaxFrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return pcm, nil
}
