// Package stream is the server-sent events transport of one chat connection.
// Content events, heartbeats and the connection timeout all write through a
// single mutex, and exactly one of Complete, Fail or Abort finalizes the
// stream; everything after that is a no-op.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

// Event is the SSE event name.
type Event string

const (
	EventStart       Event = "start"
	EventReasoning   Event = "reasoning"
	EventToken       Event = "token"
	EventQuota       Event = "quota"
	EventWarning     Event = "warning"
	EventSearchLinks Event = "searchLinks"
	EventError       Event = "error"
	EventHeartbeat   Event = "heartbeat"
	EventComplete    Event = "complete"
)

const (
	DefaultHeartbeat = 30 * time.Second
	DefaultTimeout   = 300 * time.Second

	KindService = "service"
	KindPolicy  = "policy"

	timeoutMessage = "Request timed out. Please try again."
)

var (
	ErrFinalized            = errors.New("stream: already finalized")
	ErrStreamingUnsupported = errors.New("stream: response writer does not support flushing")
)

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type typePayload struct {
	Type string `json:"type"`
}

type Options struct {
	Heartbeat time.Duration
	Timeout   time.Duration
}

type Transport struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	bw        *bufio.Writer
	flusher   http.Flusher
	started   bool
	wroteHdr  bool
	finalized bool
	done      chan struct{}
	timer     *time.Timer
	opts      Options
	logger    *zap.Logger
}

// New prepares w for streaming. Nothing is written until Start.
func New(w http.ResponseWriter, opts Options, logger *zap.Logger) (*Transport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &Transport{
		w:       w,
		bw:      bufio.NewWriter(w),
		flusher: flusher,
		done:    make(chan struct{}),
		opts:    opts,
		logger:  logging.OrNop(logger),
	}, nil
}

// Start writes the start event and arms the heartbeat and the connection
// timeout.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return ErrFinalized
	}
	if t.started {
		return nil
	}
	t.started = true
	if err := t.write(EventStart, typePayload{Type: "start"}); err != nil {
		return err
	}

	t.timer = time.AfterFunc(t.opts.Timeout, t.expire)
	go t.heartbeat()
	return nil
}

// Send writes one event. After finalization it writes nothing and returns
// ErrFinalized.
func (t *Transport) Send(ev Event, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return ErrFinalized
	}
	return t.write(ev, payload)
}

// Complete writes the complete event and finalizes. It reports whether this
// call finalized the stream.
func (t *Transport) Complete() bool {
	return t.finalize(EventComplete, typePayload{Type: "complete"})
}

// Fail writes a single error event and finalizes.
func (t *Transport) Fail(payload ErrorPayload) bool {
	return t.finalize(EventError, payload)
}

// Abort finalizes without writing, for a client that has gone away.
func (t *Transport) Abort() bool {
	return t.finalize("", nil)
}

// Done is closed once the stream is finalized.
func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) Finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalized
}

func (t *Transport) finalize(ev Event, payload any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return false
	}
	if ev != "" {
		if err := t.write(ev, payload); err != nil {
			t.logger.Debug("final event not delivered", zap.String("event", string(ev)), zap.Error(err))
		}
	}
	t.finalized = true
	if t.timer != nil {
		t.timer.Stop()
	}
	close(t.done)
	return true
}

func (t *Transport) expire() {
	if t.Fail(ErrorPayload{Error: timeoutMessage, Kind: KindService}) {
		t.logger.Warn("stream timed out", zap.Duration("timeout", t.opts.Timeout))
	}
}

func (t *Transport) heartbeat() {
	ticker := time.NewTicker(t.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			err := t.Send(EventHeartbeat, typePayload{Type: "heartbeat"})
			if errors.Is(err, ErrFinalized) {
				return
			}
			if err != nil {
				t.logger.Debug("heartbeat failed", zap.Error(err))
			}
		}
	}
}

// write must be called with mu held.
func (t *Transport) write(ev Event, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", ev, err)
	}
	if !t.wroteHdr {
		t.wroteHdr = true
		t.w.WriteHeader(http.StatusOK)
	}
	if _, err := fmt.Fprintf(t.bw, "event: %s\ndata: %s\n\n", ev, data); err != nil {
		return err
	}
	if err := t.bw.Flush(); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}
