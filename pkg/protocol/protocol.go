package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Device statuses. Anything else is rejected by the registry.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const DefaultDeviceType = "raspberry_pi"

func ValidStatus(s string) bool {
	return s == StatusOnline || s == StatusOffline
}

// Device is a registered client endpoint.
type Device struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	DeviceType string    `json:"device_type"`
	Status     string    `json:"status"`
	LastSeen   time.Time `json:"last_seen"`
}

// Conversation is one committed voice turn.
type Conversation struct {
	ID         int64     `json:"id"`
	DeviceID   int64     `json:"device_id"`
	UserInput  string    `json:"user_input"`
	AIResponse string    `json:"ai_response"`
	Timestamp  time.Time `json:"timestamp"`
}

// TurnResult is the body of a successful /voice/process call.
// AudioURL is null when the synthesizer produced nothing.
type TurnResult struct {
	Text     string  `json:"text"`
	Response string  `json:"response"`
	AudioURL *string `json:"audio_url"`
}

type RegisterRequest struct {
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

// ErrorBody mirrors the {"detail": "..."} error envelope.
type ErrorBody struct {
	Detail string `json:"detail"`
}

type EventKind string

const (
	EventDeviceRegistered EventKind = "device.registered"
	EventDeviceStatus     EventKind = "device.status"
	EventTurnCompleted    EventKind = "turn.completed"
)

// Event is pushed to /ws/events subscribers.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Time         time.Time     `json:"time"`
	Device       *Device       `json:"device,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	AudioURL     string        `json:"audio_url,omitempty"`
}

func ParseEvent(b []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" {
		return nil, fmt.Errorf("event without kind")
	}
	return &ev, nil
}

func (ev *Event) String() string {
	switch {
	case ev.Conversation != nil:
		return fmt.Sprintf("%s device=%d you=%q ai=%q", ev.Kind, ev.Conversation.DeviceID,
			ev.Conversation.UserInput, ev.Conversation.AIResponse)
	case ev.Device != nil:
		return fmt.Sprintf("%s device=%d name=%q status=%s", ev.Kind, ev.Device.ID, ev.Device.Name, ev.Device.Status)
	default:
		return string(ev.Kind)
	}
}
