package muxhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Asset event types handled by the reconciler.
const (
	EventAssetCreated = "video.asset.created"
	EventAssetReady   = "video.asset.ready"
	EventAssetErrored = "video.asset.errored"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is the Mux webhook envelope. Data is kept raw because its shape depends on Type.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// Asset is the data payload of video.asset.* events.
type Asset struct {
	ID          string       `json:"id"`
	UploadID    string       `json:"upload_id,omitempty"`
	Status      string       `json:"status,omitempty"`
	Passthrough string       `json:"passthrough,omitempty"`
	Duration    float64      `json:"duration,omitempty"`
	Meta        *AssetMeta   `json:"meta,omitempty"`
	PlaybackIDs []PlaybackID `json:"playback_ids,omitempty"`
	Errors      *AssetErrors `json:"errors,omitempty"`
}

type AssetMeta struct {
	ExternalID string `json:"external_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy,omitempty"`
}

type AssetErrors struct {
	Type     string   `json:"type,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// ExternalID returns meta.external_id, or "" when absent.
func (a *Asset) ExternalID() string {
	if a.Meta == nil {
		return ""
	}
	return a.Meta.ExternalID
}

// FirstPlaybackID returns the id of the first playback id, or nil when there is none.
func (a *Asset) FirstPlaybackID() *string {
	if len(a.PlaybackIDs) == 0 || a.PlaybackIDs[0].ID == "" {
		return nil
	}
	id := a.PlaybackIDs[0].ID
	return &id
}

// IsAssetEvent reports whether the event carries an Asset payload.
func (e *Event) IsAssetEvent() bool {
	switch e.Type {
	case EventAssetCreated, EventAssetReady, EventAssetErrored:
		return true
	}
	return false
}

// Asset decodes the data payload as an asset.
func (e *Event) Asset() (*Asset, error) {
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformedEvent)
	}
	var a Asset
	if err := json.Unmarshal(e.Data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &a, nil
}

// Unwrap decodes a verified body. Call Verify first.
func Unwrap(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return &e, nil
}
