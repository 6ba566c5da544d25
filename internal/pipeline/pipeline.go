// Package pipeline runs one voice turn on the server: persist the upload,
// recognize, respond, synthesize, then log the exchange.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"voxrelay/internal/events"
	"voxrelay/internal/voice"
	"voxrelay/pkg/audioconv"
	"voxrelay/pkg/protocol"
)

var (
	ErrUploadIO    = errors.New("pipeline: store upload")
	ErrRecognition = errors.New("pipeline: speech recognition")
	ErrGeneration  = errors.New("pipeline: response generation")
	ErrSynthesis   = errors.New("pipeline: speech synthesis")
	ErrLog         = errors.New("pipeline: log conversation")
)

// ConversationLog is the single commit point of a turn.
type ConversationLog interface {
	AppendConversation(ctx context.Context, deviceID int64, userInput, aiResponse string) (protocol.Conversation, error)
}

const URLPrefix = "/uploads/"

type Pipeline struct {
	voice     voice.Set
	convs     ConversationLog
	events    events.Publisher
	incoming  string
	uploadDir string
	decode    func(string, audioconv.Options) (*audioconv.PCM, error)
}

// New wires a pipeline. incoming holds transient uploads; uploadDir holds
// synthesized replies and is what /uploads serves.
func New(set voice.Set, convs ConversationLog, pub events.Publisher, incoming, uploadDir string) *Pipeline {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Pipeline{
		voice:     set,
		convs:     convs,
		events:    pub,
		incoming:  incoming,
		uploadDir: uploadDir,
		decode:    audioconv.DecodeFile,
	}
}

// Process runs the turn. Nothing is retried and the upload is always removed.
// Either the conversation row is written and a result returned, or an error
// is returned and nothing is logged.
func (p *Pipeline) Process(ctx context.Context, audio io.Reader, deviceID int64) (protocol.TurnResult, error) {
	start := time.Now()
	lg := log.With("device_id", deviceID)

	upload, err := p.saveUpload(audio)
	if err != nil {
		return protocol.TurnResult{}, fmt.Errorf("%w: %w", ErrUploadIO, err)
	}
	defer func() {
		if err := os.Remove(upload); err != nil && !os.IsNotExist(err) {
			lg.Warn("Failed to remove upload", "path", upload, "err", err)
		}
	}()
	p.probe(ctx, lg, upload)

	text, err := p.voice.Recognizer.Recognize(ctx, upload)
	if err != nil {
		return protocol.TurnResult{}, fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	lg.Debug("Recognized", "text", text)

	reply, err := p.voice.Responder.Respond(ctx, text)
	if err != nil {
		return protocol.TurnResult{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	speech, err := p.voice.Synthesizer.Synthesize(ctx, reply, p.uploadDir)
	if err != nil {
		return protocol.TurnResult{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	conv, err := p.convs.AppendConversation(ctx, deviceID, text, reply)
	if err != nil {
		if speech != "" {
			os.Remove(speech)
		}
		return protocol.TurnResult{}, fmt.Errorf("%w: %w", ErrLog, err)
	}

	res := protocol.TurnResult{Text: text, Response: reply}
	if speech != "" {
		url := URLPrefix + filepath.Base(speech)
		res.AudioURL = &url
	}

	ev := protocol.Event{Kind: protocol.EventTurnCompleted, Conversation: &conv}
	if res.AudioURL != nil {
		ev.AudioURL = *res.AudioURL
	}
	p.events.Publish(ev)

	lg.Info("Turn completed", "conversation_id", conv.ID, "audio", res.AudioURL != nil, "took", time.Since(start))
	return res, nil
}

func (p *Pipeline) saveUpload(r io.Reader) (string, error) {
	path := filepath.Join(p.incoming, "upload_"+uuid.NewString()+".wav")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// probe logs what was uploaded. Recognizers do their own decoding, so an
// unreadable file is only worth a debug line here. The decode is skipped
// unless debug logging is on.
func (p *Pipeline) probe(ctx context.Context, lg *log.Logger, path string) {
	if !lg.Enabled(ctx, log.LevelDebug) {
		return
	}
	pcm, err := p.decode(path, audioconv.Options{})
	if err != nil {
		lg.Debug("Upload not decodable", "path", path, "err", err)
		return
	}
	lg.Debug("Upload received", "format", pcm.Format, "rate", pcm.SourceRate,
		"channels", pcm.SourceChannels, "duration", pcm.Duration())
}
