package protocol

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Feed follows the server's event websocket and reconnects when it drops.
type Feed struct {
	url    string
	reconn time.Duration

	mu   sync.Mutex
	conn *ws.Conn
}

func NewFeed(url string, reconn time.Duration) *Feed {
	if reconn <= 0 {
		reconn = time.Second
	}
	return &Feed{url: url, reconn: reconn}
}

type incomeKind uint

const (
	connClose incomeKind = iota
	readFailure
	readOK
)

type income struct {
	kind incomeKind
	msg  []byte
	err  error
}

func (f *Feed) dial(ctx context.Context) error {
	log.Debug("dial event feed", "url", f.url)
	conn, _, err := ws.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *Feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *Feed) read() income {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return income{kind: connClose, err: err}
		}
		return income{kind: readFailure, err: err}
	}
	return income{kind: readOK, msg: msg}
}

func (f *Feed) reconnect(ctx context.Context) error {
	for {
		if err := f.dial(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconn):
		}
	}
}

// Run delivers decoded events to emit until ctx is cancelled.
// The first dial error is returned; later disconnects are retried.
func (f *Feed) Run(ctx context.Context, emit func(*Event)) error {
	if err := f.dial(ctx); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		f.close()
	}()

	for {
		in := f.read()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch in.kind {
		case connClose, readFailure:
			log.Warn("event feed dropped, reconnecting", "url", f.url, "err", in.err)
			f.close()
			if err := f.reconnect(ctx); err != nil {
				return err
			}
			log.Info("event feed reconnected")

		case readOK:
			ev, err := ParseEvent(in.msg)
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}
			emit(ev)
		}
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
