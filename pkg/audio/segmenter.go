package audio

import "fmt"

// Phase is the segmentation phase of a [Segmenter].
type Phase int

const (
	// PhaseIdle means no speech is being captured. Frames below the start
	// threshold are discarded without ever touching the buffer.
	PhaseIdle Phase = iota

	// PhaseRecording means an utterance is being accumulated.
	PhaseRecording
)

// String returns "idle" or "recording".
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SegmenterConfig holds the voice-activity thresholds. The start threshold
// sits above the end threshold (hysteresis) so energy hovering at the
// speech/noise boundary cannot chatter the state machine.
//
// The values are tuned constants, not derived quantities. Deployments may
// override them, but the defaults are required for behavioural parity with
// the device firmware's expectations.
type SegmenterConfig struct {
	// StartThreshold is the RMS energy at or above which an idle stream
	// begins recording. Default 800.
	StartThreshold float64

	// EndThreshold is the RMS energy below which a recording frame counts
	// as silence. Must be below StartThreshold. Default 500.
	EndThreshold float64

	// MaxSilenceFrames is the number of consecutive sub-threshold frames
	// that ends an utterance. Deliberately a frame count, not a duration:
	// the upstream codec's frame cadence is opaque here. Default 12.
	MaxSilenceFrames int

	// MinUtteranceSamples is the minimum buffered length for an utterance
	// to be emitted rather than discarded as a spurious trigger (a knock,
	// a click). Default 8000 (0.5 s at 16 kHz).
	MinUtteranceSamples int

	// MaxBufferSamples caps the buffer regardless of silence. Exceeding it
	// resets the segmenter without emitting, so a client that never falls
	// silent cannot grow memory without bound. Default 480000 (30 s).
	MaxBufferSamples int
}

// DefaultSegmenterConfig returns the tuned default thresholds.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		StartThreshold:      800,
		EndThreshold:        500,
		MaxSilenceFrames:    12,
		MinUtteranceSamples: 8000,
		MaxBufferSamples:    SampleRate * 30,
	}
}

// Utterance is one contiguous span of audio judged to contain speech,
// bounded by a loudness rise and a sustained loudness fall. Once emitted,
// ownership of the sample data passes to the caller; the segmenter retains
// nothing.
type Utterance struct {
	// Samples are normalised float samples in [-1.0, 1.0].
	Samples []float32

	// PeakEnergy is the highest frame RMS observed while recording.
	PeakEnergy float64
}

// Duration returns the utterance length in seconds at the fixed sample rate.
func (u Utterance) Duration() float64 {
	return float64(len(u.Samples)) / SampleRate
}

// Segmenter is the voice-activity state machine. It decides where one
// utterance begins and ends, accumulates normalised samples while
// recording, and enforces the buffer cap.
//
// Each connection owns exactly one Segmenter; it is never shared and is
// not safe for concurrent use. All transitions happen inside [Segmenter.Ingest],
// evaluated once per decoded frame in arrival order, so the phase sequence
// is deterministic for a given input sequence.
type Segmenter struct {
	cfg SegmenterConfig

	phase      Phase
	silenceRun int
	peakEnergy float64
	buffer     []float32
}

// NewSegmenter creates a Segmenter. Zero-valued fields of cfg fall back to
// the defaults from [DefaultSegmenterConfig].
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	def := DefaultSegmenterConfig()
	if cfg.StartThreshold <= 0 {
		cfg.StartThreshold = def.StartThreshold
	}
	if cfg.EndThreshold <= 0 {
		cfg.EndThreshold = def.EndThreshold
	}
	if cfg.MaxSilenceFrames <= 0 {
		cfg.MaxSilenceFrames = def.MaxSilenceFrames
	}
	if cfg.MinUtteranceSamples <= 0 {
		cfg.MinUtteranceSamples = def.MinUtteranceSamples
	}
	if cfg.MaxBufferSamples <= 0 {
		cfg.MaxBufferSamples = def.MaxBufferSamples
	}
	return &Segmenter{
		cfg:    cfg,
		buffer: make([]float32, 0, SampleRate*10),
	}
}

// Phase returns the current segmentation phase.
func (s *Segmenter) Phase() Phase { return s.phase }

// BufferedSamples returns the number of samples accumulated so far.
func (s *Segmenter) BufferedSamples() int { return len(s.buffer) }

// Ingest advances the state machine by one frame. The samples must be a
// decoded PCM block and energy its RMS score.
//
// When a sufficiently long utterance has just completed, Ingest returns it
// with ok == true. In every other case — idle frames, mid-utterance frames,
// too-short utterances, and overflow resets — ok is false and the returned
// Utterance is zero.
func (s *Segmenter) Ingest(samples []int16, energy float64) (Utterance, bool) {
	if s.phase == PhaseIdle {
		if energy >= s.cfg.StartThreshold {
			// The triggering frame is the earliest audio kept; there is no
			// pre-roll, so sub-threshold idle noise never reaches the
			// recognition engine.
			s.phase = PhaseRecording
			s.silenceRun = 0
			s.peakEnergy = energy
			s.append(samples)
		}
		return Utterance{}, false
	}

	// Recording: buffer unconditionally so brief intra-utterance dips are
	// never cut out of the middle of a sentence.
	s.append(samples)

	if energy > s.peakEnergy {
		s.peakEnergy = energy
	}

	if energy < s.cfg.EndThreshold {
		s.silenceRun++
	} else {
		s.silenceRun = 0
	}

	if s.silenceRun >= s.cfg.MaxSilenceFrames {
		return s.finalize()
	}

	if len(s.buffer) > s.cfg.MaxBufferSamples {
		s.reset()
	}
	return Utterance{}, false
}

// finalize ends the current utterance. Buffers longer than the minimum are
// emitted; shorter ones are discarded as spurious triggers. Both paths
// leave the segmenter in the identical idle post-state.
func (s *Segmenter) finalize() (Utterance, bool) {
	if len(s.buffer) > s.cfg.MinUtteranceSamples {
		utt := Utterance{
			Samples:    s.buffer,
			PeakEnergy: s.peakEnergy,
		}
		s.buffer = make([]float32, 0, SampleRate*10)
		s.reset()
		return utt, true
	}
	s.reset()
	return Utterance{}, false
}

// reset returns the segmenter to idle with an empty buffer and zeroed
// counters. The post-condition is the same regardless of which path
// triggered the reset.
func (s *Segmenter) reset() {
	s.buffer = s.buffer[:0]
	s.silenceRun = 0
	s.peakEnergy = 0
	s.phase = PhaseIdle
}

// append converts a PCM block to normalised floats and buffers it.
func (s *Segmenter) append(samples []int16) {
	for _, sample := range samples {
		s.buffer = append(s.buffer, float32(sample)/32768.0)
	}
}
