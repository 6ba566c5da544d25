// Package session drives the push-to-talk client: capture on press, upload
// on release, show the exchange and play the reply, with a heartbeat that
// keeps the device marked online.
package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	log "log/slog"
	"sync"
	"time"

	"voxrelay/internal/audio"
	"voxrelay/internal/client"
	"voxrelay/internal/notify"
	"voxrelay/pkg/protocol"
)

type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StatePlaying    State = "playing"
)

// Status lines shown to the user.
const (
	StatusReady         = "Ready"
	StatusRecording     = "Recording..."
	StatusProcessing    = "Processing..."
	StatusNotRegistered = "Error: Device not registered"
	StatusFailed        = "Error occurred"
	StatusNothing       = "Nothing recorded"
)

const maxHistory = 300

var (
	// ErrBusy rejects a press while the previous turn is still in flight.
	ErrBusy         = errors.New("session: turn in progress")
	ErrNotRecording = errors.New("session: not recording")
)

// Backend is the relay server as seen by the client.
type Backend interface {
	Register(ctx context.Context, name, deviceType string) (protocol.Device, error)
	UpdateStatus(ctx context.Context, id int64, status string) (protocol.Device, error)
	Process(ctx context.Context, deviceID int64, wavPath string) (protocol.TurnResult, error)
	FetchAudio(ctx context.Context, audioURL string, w io.Writer) (int64, error)
}

type Capture interface {
	Start() error
	Stop() (string, error)
	Dropped() int64
}

type Playback interface {
	PlayBytes(ctx context.Context, data []byte) error
}

type Cue interface {
	Play(tones []notify.Tone) error
}

type Options struct {
	DeviceName string
	DeviceType string
	Heartbeat  time.Duration
}

type Snapshot struct {
	State    State    `json:"state"`
	Status   string   `json:"status"`
	DeviceID int64    `json:"device_id"`
	History  []string `json:"history"`
	Dropped  int64    `json:"dropped_frames"`
}

// turn is the handle of the one in-flight upload/playback task.
type turn struct {
	done chan struct{}
}

type Controller struct {
	backend Backend
	capture Capture
	player  Playback
	cue     Cue
	opts    Options

	mu       sync.Mutex
	base     context.Context
	state    State
	status   string
	deviceID int64
	history  []string
	turn     *turn
}

// New builds an idle controller. cue may be nil.
func New(backend Backend, capture Capture, player Playback, cue Cue, opts Options) *Controller {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 60 * time.Second
	}
	return &Controller{
		backend: backend,
		capture: capture,
		player:  player,
		cue:     cue,
		opts:    opts,
		base:    context.Background(),
		state:   StateIdle,
		status:  StatusReady,
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:    c.state,
		Status:   c.status,
		DeviceID: c.deviceID,
		History:  append([]string(nil), c.history...),
		Dropped:  c.capture.Dropped(),
	}
}

func (c *Controller) Press() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.turn != nil:
		return ErrBusy
	case c.state == StateRecording:
		return nil
	}

	if err := c.capture.Start(); err != nil {
		c.status = StatusFailed
		log.Error("Failed to start recording", "err", err)
		return err
	}
	c.state = StateRecording
	c.status = StatusRecording
	log.Info("Recording")

	if c.cue != nil {
		if err := c.cue.Play(notify.Start); err != nil {
			log.Debug("Cue failed", "err", err)
		}
	}
	return nil
}

// Release stops the capture and hands the clip to a background turn.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return ErrNotRecording
	}

	path, err := c.capture.Stop()
	switch {
	case errors.Is(err, audio.ErrNothingCaptured):
		c.state = StateIdle
		c.status = StatusNothing
		return nil
	case err != nil:
		c.state = StateIdle
		c.status = StatusFailed
		log.Error("Failed to save recording", "err", err)
		return err
	}

	t := &turn{done: make(chan struct{})}
	c.turn = t
	c.state = StateProcessing
	c.status = StatusProcessing
	go c.runTurn(c.base, t, path, c.deviceID)
	return nil
}

// Toggle presses when idle and releases while recording.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	state, busy := c.state, c.turn != nil
	c.mu.Unlock()

	switch {
	case state == StateRecording:
		return c.Release()
	case busy:
		return ErrBusy
	default:
		return c.Press()
	}
}

// Wait blocks until no turn is in flight.
func (c *Controller) Wait() {
	c.mu.Lock()
	t := c.turn
	c.mu.Unlock()
	if t != nil {
		<-t.done
	}
}

func (c *Controller) setStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Controller) runTurn(base context.Context, t *turn, path string, deviceID int64) {
	defer func() {
		c.mu.Lock()
		c.turn = nil
		c.state = StateIdle
		c.mu.Unlock()
		close(t.done)
	}()

	if deviceID == 0 {
		c.setStatus(StatusNotRegistered)
		log.Warn("Dropping recording, device not registered", "path", path)
		return
	}

	// No deadline here: a slow server delays the reply, it never cuts
	// playback short. Only shutdown of base ends the turn early.
	res, err := c.backend.Process(base, deviceID, path)
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) {
			c.setStatus("Error: " + se.Body)
			log.Error("Server error", "code", se.Code, "body", se.Body)
		} else {
			c.setStatus(StatusFailed)
			log.Error("Failed to process recording", "err", err)
		}
		return
	}

	c.mu.Lock()
	c.history = append(c.history, "You: "+res.Text, "AI: "+res.Response, "---")
	if over := len(c.history) - maxHistory; over > 0 {
		c.history = append([]string(nil), c.history[over:]...)
	}
	c.mu.Unlock()
	log.Info("Turn", "you", res.Text, "ai", res.Response)

	if res.AudioURL != nil && *res.AudioURL != "" {
		c.mu.Lock()
		c.state = StatePlaying
		c.mu.Unlock()
		c.play(base, *res.AudioURL)
	}
	c.setStatus(StatusReady)
}

// play failures are logged only; the turn itself already succeeded.
func (c *Controller) play(ctx context.Context, url string) {
	var buf bytes.Buffer
	if _, err := c.backend.FetchAudio(ctx, url, &buf); err != nil {
		log.Error("Failed to fetch response audio", "url", url, "err", err)
		return
	}
	if err := c.player.PlayBytes(ctx, buf.Bytes()); err != nil {
		log.Error("Failed to play response audio", "url", url, "err", err)
	}
}

// Run registers the device, keeps it online until ctx is done, lets the
// in-flight turn finish and then reports the device offline.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()

	c.register(ctx)

	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			c.heartbeat(ctx)
		}
	}

	c.mu.Lock()
	if c.state == StateRecording {
		if _, err := c.capture.Stop(); err != nil && !errors.Is(err, audio.ErrNothingCaptured) {
			log.Warn("Failed to stop recording", "err", err)
		}
		c.state = StateIdle
	}
	id := c.deviceID
	c.mu.Unlock()

	c.Wait()

	if id != 0 {
		offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := c.backend.UpdateStatus(offCtx, id, protocol.StatusOffline); err != nil {
			log.Warn("Failed to report offline", "err", err)
		}
	}
	return nil
}

func (c *Controller) register(ctx context.Context) {
	dev, err := c.backend.Register(ctx, c.opts.DeviceName, c.opts.DeviceType)
	if err != nil {
		log.Error("Failed to register device", "name", c.opts.DeviceName, "err", err)
		return
	}
	c.mu.Lock()
	c.deviceID = dev.ID
	c.mu.Unlock()
	log.Info("Device registered", "id", dev.ID, "name", dev.Name)
}

func (c *Controller) heartbeat(ctx context.Context) {
	c.mu.Lock()
	id := c.deviceID
	c.mu.Unlock()
	if id == 0 {
		return
	}
	if _, err := c.backend.UpdateStatus(ctx, id, protocol.StatusOnline); err != nil {
		log.Error("Failed to update device status", "err", err)
	}
}
