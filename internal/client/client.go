// Package client talks to vox-server on behalf of the daemon and ctl tool.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"voxrelay/pkg/protocol"
)

// StatusError is a non-2xx reply. Body is the raw response text.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

type Client struct {
	base string
	hc   *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *Client) BaseURL() string { return c.base }

// EventsURL is the websocket address of the server's event feed.
func (c *Client) EventsURL() string {
	u := c.base
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/events"
}

func (c *Client) Register(ctx context.Context, name, deviceType string) (protocol.Device, error) {
	var dev protocol.Device
	err := c.postJSON(ctx, "/devices/register", protocol.RegisterRequest{
		Name:       name,
		Status:     protocol.StatusOnline,
		DeviceType: deviceType,
	}, &dev)
	return dev, err
}

func (c *Client) UpdateStatus(ctx context.Context, id int64, status string) (protocol.Device, error) {
	var dev protocol.Device
	path := "/devices/" + strconv.FormatInt(id, 10) + "/status"
	err := c.postJSON(ctx, path, protocol.StatusRequest{Status: status}, &dev)
	return dev, err
}

// Process uploads a recording as multipart "audio" plus "device_id".
func (c *Client) Process(ctx context.Context, deviceID int64, wavPath string) (protocol.TurnResult, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return protocol.TurnResult{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", filepath.Base(wavPath))
	if err != nil {
		return protocol.TurnResult{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return protocol.TurnResult{}, err
	}
	if err := mw.WriteField("device_id", strconv.FormatInt(deviceID, 10)); err != nil {
		return protocol.TurnResult{}, err
	}
	if err := mw.Close(); err != nil {
		return protocol.TurnResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/voice/process", &body)
	if err != nil {
		return protocol.TurnResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res protocol.TurnResult
	err = c.do(req, &res)
	return res, err
}

// FetchAudio downloads audioURL (server-relative or absolute) into w.
func (c *Client) FetchAudio(ctx context.Context, audioURL string, w io.Writer) (int64, error) {
	target := audioURL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.base + "/" + strings.TrimLeft(audioURL, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) Devices(ctx context.Context) ([]protocol.Device, error) {
	var out []protocol.Device
	err := c.getJSON(ctx, "/devices", nil, &out)
	return out, err
}

// Conversations lists recent turns, newest first. deviceID 0 means all.
func (c *Client) Conversations(ctx context.Context, deviceID int64, limit int) ([]protocol.Conversation, error) {
	q := url.Values{}
	if deviceID > 0 {
		q.Set("device_id", strconv.FormatInt(deviceID, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []protocol.Conversation
	err := c.getJSON(ctx, "/conversations", q, &out)
	return out, err
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
