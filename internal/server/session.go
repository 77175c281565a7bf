package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"

	"heartmirror/internal/history"
	"heartmirror/internal/observe"
	"heartmirror/internal/protocol"
	"heartmirror/internal/transcript"
	"heartmirror/pkg/audio"
	"heartmirror/pkg/provider/sentiment"
	"heartmirror/pkg/provider/stt"
)

// frameDecoder decodes one inbound audio frame to PCM samples.
// [audio.Decoder] is the production implementation; tests substitute a stub
// that returns scripted PCM.
type frameDecoder interface {
	Decode(frame []byte) ([]int16, error)
}

// Session handles one device connection: it answers pings, logs device
// messages, runs binary frames through the audio pipeline, and sends a
// reaction response for every accepted utterance.
//
// A Session is single-goroutine: the read loop owns all mutable state
// (decoder and segmenter), so no locking is needed. The recognizer,
// classifier, filter, and store are shared across sessions and must be
// concurrency-safe.
type Session struct {
	conn       *websocket.Conn
	decoder    frameDecoder
	segmenter  *audio.Segmenter
	recognizer stt.Recognizer
	classifier sentiment.Classifier
	filter     *transcript.Filter
	store      history.Store // nil disables persistence
	metrics    *observe.Metrics
	log        *slog.Logger
}

// SessionConfig collects the dependencies for a [Session].
type SessionConfig struct {
	Conn       *websocket.Conn
	Decoder    frameDecoder
	Segmenter  *audio.Segmenter
	Recognizer stt.Recognizer
	Classifier sentiment.Classifier
	Filter     *transcript.Filter

	// Store persists accepted results. May be nil.
	Store history.Store

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// NewSession builds a Session from cfg. Logger and Metrics fall back to the
// package defaults when nil.
func NewSession(cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Session{
		conn:       cfg.Conn,
		decoder:    cfg.Decoder,
		segmenter:  cfg.Segmenter,
		recognizer: cfg.Recognizer,
		classifier: cfg.Classifier,
		filter:     cfg.Filter,
		store:      cfg.Store,
		metrics:    m,
		log:        log,
	}
}

// Run sends the initial ready message, then serves the connection until the
// device disconnects or ctx is cancelled. A normal peer close returns nil.
func (s *Session) Run(ctx context.Context) error {
	if err := s.writeResponse(ctx, protocol.InitialResponse()); err != nil {
		return err
	}

	for {
		typ, payload, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		switch typ {
		case websocket.MessageText:
			if err := s.handleText(ctx, payload); err != nil {
				return err
			}
		case websocket.MessageBinary:
			if err := s.handleFrame(ctx, payload); err != nil {
				return err
			}
		}
	}
}

// handleText answers pings and logs device messages. The pong reply is
// independent of the structured decode, so a payload can earn both.
// Malformed payloads are logged and dropped; they never end the session.
func (s *Session) handleText(ctx context.Context, payload []byte) error {
	if protocol.IsPing(payload) {
		if err := s.conn.Write(ctx, websocket.MessageText, []byte(protocol.Pong)); err != nil {
			return err
		}
	}

	msg, err := protocol.DecodeDeviceMessage(payload)
	if err != nil {
		s.log.Info("unrecognised text message", "payload", string(payload), "error", err)
		return nil
	}
	switch msg.Type {
	case protocol.TypeHello:
		s.log.Info("device hello", "version", msg.Version)
	case protocol.TypeEvent:
		s.log.Info("device event", "key", msg.Key, "value", msg.Value)
	}
	return nil
}

// handleFrame runs one binary frame through decode, energy measurement, and
// segmentation. Decode failures drop the frame only.
func (s *Session) handleFrame(ctx context.Context, frame []byte) error {
	pcm, err := s.decoder.Decode(frame)
	if err != nil {
		s.metrics.DecodeErrors.Add(ctx, 1)
		s.log.Warn("audio frame dropped", "error", err)
		return nil
	}
	s.metrics.FramesProcessed.Add(ctx, 1)

	utterance, ok := s.segmenter.Ingest(pcm, audio.RMS(pcm))
	if !ok {
		return nil
	}
	return s.handleUtterance(ctx, utterance)
}

// handleUtterance recognises, filters, classifies, persists, and answers one
// completed utterance. Every failure short of a dead connection is absorbed:
// the device either gets a full reaction or silence.
func (s *Session) handleUtterance(ctx context.Context, utt audio.Utterance) error {
	s.metrics.UtterancesEmitted.Add(ctx, 1)
	log := s.log.With("duration", utt.Duration(), "peak_energy", utt.PeakEnergy)

	start := time.Now()
	text, err := s.recognizer.Recognize(ctx, utt.Samples)
	s.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordSuppressed(ctx, "recognition_error")
		log.Warn("recognition failed, utterance suppressed", "error", err)
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.RecordSuppressed(ctx, "empty")
		log.Debug("empty transcription, utterance suppressed")
		return nil
	}
	if !s.filter.Valid(text) {
		s.metrics.RecordSuppressed(ctx, "denylist")
		log.Info("denylisted transcription suppressed", "text", text)
		return nil
	}

	start = time.Now()
	emotion := s.classifier.Classify(ctx, text)
	s.metrics.ClassificationDuration.Record(ctx, time.Since(start).Seconds())

	if s.store != nil {
		if err := s.store.Append(ctx, text, string(emotion)); err != nil {
			s.metrics.HistoryWriteErrors.Add(ctx, 1)
			log.Warn("history write failed", "error", err)
		}
	}

	log.Info("speech result", "text", text, "emotion", emotion)
	if err := s.writeResponse(ctx, protocol.SpeechResult(text, string(emotion))); err != nil {
		return err
	}
	s.metrics.RecordResponse(ctx, string(emotion))
	return nil
}

// writeResponse encodes and sends one outbound message.
func (s *Session) writeResponse(ctx context.Context, resp protocol.ServerResponse) error {
	data, err := resp.Encode()
	if err != nil {
		// Marshalling a plain struct cannot realistically fail; treat it as fatal.
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

var _ frameDecoder = (*audio.Decoder)(nil)
