package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"heartmirror/internal/history"
	historymock "heartmirror/internal/history/mock"
	"heartmirror/internal/server"
	"heartmirror/internal/transcript"
	"heartmirror/pkg/audio"
	"heartmirror/pkg/provider/sentiment"
	sentimentmock "heartmirror/pkg/provider/sentiment/mock"
	sttmock "heartmirror/pkg/provider/stt/mock"
)

// scriptDecoder maps frame bytes to scripted PCM: 'L' yields a loud block,
// 'q' a silent one, and 'x' a decode error.
type scriptDecoder struct{}

func (d *scriptDecoder) Decode(frame []byte) ([]int16, error) {
	if len(frame) == 0 || frame[0] == 'x' {
		return nil, errors.New("corrupt frame")
	}
	var amp int16
	if frame[0] == 'L' {
		amp = 3000
	}
	pcm := make([]int16, 320)
	for i := range pcm {
		pcm[i] = amp
	}
	return pcm, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSegmenterConfig shrinks the silence run and minimum length so a
// handful of frames completes an utterance.
func testSegmenterConfig() audio.SegmenterConfig {
	cfg := audio.DefaultSegmenterConfig()
	cfg.MaxSilenceFrames = 2
	cfg.MinUtteranceSamples = 100
	return cfg
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// syncBuffer is an io.Writer safe for the session goroutine to log into
// while the test reads.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// startSession serves one Session over a real websocket and returns the
// client side of the connection.
func startSession(t *testing.T, rec *sttmock.Recognizer, cls *sentimentmock.Classifier, store history.Store) *websocket.Conn {
	t.Helper()
	return startSessionLogged(t, rec, cls, store, discardLogger())
}

func startSessionLogged(t *testing.T, rec *sttmock.Recognizer, cls *sentimentmock.Classifier, store history.Store, logger *slog.Logger) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		sess := server.NewSession(server.SessionConfig{
			Conn:       conn,
			Decoder:    &scriptDecoder{},
			Segmenter:  audio.NewSegmenter(testSegmenterConfig()),
			Recognizer: rec,
			Classifier: cls,
			Filter:     transcript.New(nil),
			Store:      store,
			Logger:     logger,
		})
		_ = sess.Run(r.Context())
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type: got %v, want text", typ)
	}
	return string(data)
}

func sendText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write text: %v", err)
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, kind byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{kind}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

type response struct {
	Type    string `json:"type"`
	Emotion string `json:"emotion"`
	Text    string `json:"text"`
}

func readResponse(t *testing.T, conn *websocket.Conn) response {
	t.Helper()
	raw := readText(t, conn)
	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode response %q: %v", raw, err)
	}
	return resp
}

// sendUtterance pushes enough loud then silent frames to complete one
// utterance under testSegmenterConfig.
func sendUtterance(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	for range 3 {
		sendFrame(t, conn, 'L')
	}
	for range 2 {
		sendFrame(t, conn, 'q')
	}
}

func TestSession_InitialMessage(t *testing.T) {
	t.Parallel()
	conn := startSession(t, &sttmock.Recognizer{}, &sentimentmock.Classifier{}, nil)

	resp := readResponse(t, conn)
	if resp.Type != "llm" || resp.Emotion != "calm" || resp.Text != "Connected & Ready" {
		t.Errorf("initial message: got %+v", resp)
	}
}

func TestSession_Ping(t *testing.T) {
	t.Parallel()
	conn := startSession(t, &sttmock.Recognizer{}, &sentimentmock.Classifier{}, nil)
	readResponse(t, conn) // initial message

	sendText(t, conn, "ping")
	if got := readText(t, conn); got != "pong" {
		t.Errorf("ping reply: got %q, want %q", got, "pong")
	}

	// A ping embedded in a JSON envelope gets the same literal reply.
	sendText(t, conn, `{"probe":"ping"}`)
	if got := readText(t, conn); got != "pong" {
		t.Errorf("embedded ping reply: got %q, want %q", got, "pong")
	}
}

func TestSession_PingInsideDeviceMessageGetsBoth(t *testing.T) {
	t.Parallel()
	buf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	conn := startSessionLogged(t, &sttmock.Recognizer{}, &sentimentmock.Classifier{}, nil, logger)
	readResponse(t, conn)

	// The pong reply does not swallow the hello carried in the same payload.
	sendText(t, conn, `{"type":"hello","version":"ping1"}`)
	if got := readText(t, conn); got != "pong" {
		t.Fatalf("ping reply: got %q, want %q", got, "pong")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		logs := buf.String()
		if strings.Contains(logs, "device hello") && strings.Contains(logs, "ping1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("hello was not decoded alongside the pong, logs:\n%s", logs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSession_DeviceMessagesGetNoReply(t *testing.T) {
	t.Parallel()
	conn := startSession(t, &sttmock.Recognizer{}, &sentimentmock.Classifier{}, nil)
	readResponse(t, conn)

	sendText(t, conn, `{"type":"hello","version":"1.4.2"}`)
	sendText(t, conn, `{"type":"event","key":"battery","value":"87"}`)
	sendText(t, conn, "not even json")

	// The only reply outstanding should be the pong for this ping.
	sendText(t, conn, "ping")
	if got := readText(t, conn); got != "pong" {
		t.Errorf("expected pong after device messages, got %q", got)
	}
}

func TestSession_UtteranceFlow(t *testing.T) {
	t.Parallel()
	rec := &sttmock.Recognizer{Text: "今天天气真好"}
	cls := &sentimentmock.Classifier{Label: sentiment.LabelJoy}
	store := &historymock.Store{}
	conn := startSession(t, rec, cls, store)
	readResponse(t, conn)

	sendUtterance(t, conn)

	resp := readResponse(t, conn)
	if resp.Type != "llm" {
		t.Errorf("type: got %q, want llm", resp.Type)
	}
	if resp.Emotion != "joy" {
		t.Errorf("emotion: got %q, want joy", resp.Emotion)
	}
	if resp.Text != "今天天气真好" {
		t.Errorf("text: got %q", resp.Text)
	}

	if n := rec.RecognizeCallCount(); n != 1 {
		t.Errorf("recognize calls: got %d, want 1", n)
	}
	if n := cls.ClassifyCallCount(); n != 1 {
		t.Errorf("classify calls: got %d, want 1", n)
	}
	if n := store.AppendCallCount(); n != 1 {
		t.Fatalf("append calls: got %d, want 1", n)
	}
	if call := store.AppendCalls[0]; call.Text != "今天天气真好" || call.Emotion != "joy" {
		t.Errorf("append call: got %+v", call)
	}
}

func TestSession_EmptyTranscriptSuppressed(t *testing.T) {
	t.Parallel()
	rec := &sttmock.Recognizer{Text: "   "}
	cls := &sentimentmock.Classifier{Label: sentiment.LabelJoy}
	conn := startSession(t, rec, cls, nil)
	readResponse(t, conn)

	sendUtterance(t, conn)

	// No reaction should be queued; the next reply must be the pong.
	sendText(t, conn, "ping")
	if got := readText(t, conn); got != "pong" {
		t.Errorf("expected suppression, got %q", got)
	}
	if n := cls.ClassifyCallCount(); n != 0 {
		t.Errorf("classifier should not run on empty text, got %d calls", n)
	}
}

func TestSession_DenylistedTranscriptSuppressed(t *testing.T) {
	t.Parallel()
	rec := &sttmock.Recognizer{Text: "你去找我吧"}
	cls := &sentimentmock.Classifier{Label: sentiment.LabelAnger}
	store := &historymock.Store{}
	conn := startSession(t, rec, cls, store)
	readResponse(t, conn)

	sendUtterance(t, conn)

	sendText(t, conn, "ping")
	if got := readText(t, conn); got != "pong" {
		t.Errorf("expected suppression, got %q", got)
	}
	if n := store.AppendCallCount(); n != 0 {
		t.Errorf("denylisted text must not be persisted, got %d appends", n)
	}
}

func TestSession_RecognizerErrorSuppressed(t *testing.T) {
	t.Parallel()
	rec := &sttmock.Recognizer{Err: errors.New("model exploded")}
	conn := startSession(t, rec, &sentimentmock.Classifier{}, nil)
	readResponse(t, conn)

	sendUtterance(t, conn)

	sendText(t, conn, "ping")
	if got := readText(t, conn); got != "pong" {
		t.Errorf("expected suppression, got %q", got)
	}
}

func TestSession_DecodeErrorKeepsSessionAlive(t *testing.T) {
	t.Parallel()
	rec := &sttmock.Recognizer{Text: "还在吗"}
	cls := &sentimentmock.Classifier{Label: sentiment.LabelCalm}
	conn := startSession(t, rec, cls, nil)
	readResponse(t, conn)

	sendFrame(t, conn, 'x')

	// The session survives the bad frame and still completes utterances.
	sendUtterance(t, conn)
	resp := readResponse(t, conn)
	if resp.Text != "还在吗" || resp.Emotion != "calm" {
		t.Errorf("post-error response: got %+v", resp)
	}
}

func TestSession_HistoryWriteFailureStillResponds(t *testing.T) {
	t.Parallel()
	rec := &sttmock.Recognizer{Text: "记不住也没关系"}
	cls := &sentimentmock.Classifier{Label: sentiment.LabelCalm}
	store := &historymock.Store{AppendErr: errors.New("db down")}
	conn := startSession(t, rec, cls, store)
	readResponse(t, conn)

	sendUtterance(t, conn)

	resp := readResponse(t, conn)
	if resp.Text != "记不住也没关系" {
		t.Errorf("response despite history failure: got %+v", resp)
	}
}
