// Package media manages local capture devices and tracks. The platform
// media surface (device enumeration, capture, device-change notification)
// is reached through the Provider interface; the engine never touches
// platform APIs directly, which keeps every media path testable with fakes.
package media

import (
	"context"
	"errors"
	"fmt"
)

// DeviceKind mirrors the platform's device classification.
type DeviceKind string

const (
	KindCamera     DeviceKind = "videoinput"
	KindMicrophone DeviceKind = "audioinput"
	KindSpeaker    DeviceKind = "audiooutput"
)

// Device is one enumerable capture or playback device. Label may be empty
// until a permission grant has been made; callers must tolerate that.
type Device struct {
	DeviceID string     `json:"deviceId"`
	Label    string     `json:"label"`
	Kind     DeviceKind `json:"kind"`
}

// TrackKind distinguishes audio from video capture tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one live capture track. SetEnabled flips the producing state
// without releasing the device; Stop releases it.
type Track interface {
	ID() string
	Kind() TrackKind
	DeviceID() string
	Enabled() bool
	SetEnabled(on bool)
	Stop()
}

// Constraints describe a capture request.
type Constraints struct {
	Audio bool
	Video bool

	VideoQuality     string // hd | fullhd
	AudioQuality     string // standard | high
	NoiseSuppression bool

	AudioDeviceID string
	VideoDeviceID string
}

// Provider is the platform media surface.
type Provider interface {
	// EnumerateDevices lists devices. Labels may be empty before a
	// permission grant.
	EnumerateDevices(ctx context.Context) ([]Device, error)

	// AcquireTracks opens capture tracks matching the constraints.
	AcquireTracks(ctx context.Context, c Constraints) ([]Track, error)

	// OnDeviceChange registers a hot-plug callback; the returned function
	// unsubscribes it.
	OnDeviceChange(fn func()) (unsubscribe func())
}

// Error codes for the capture taxonomy. Distinct codes let the UI render
// device-specific guidance ("allow camera access" vs "connect a device").
var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrDeviceNotFound   = errors.New("media: device not found")
	ErrStream           = errors.New("media: stream error")
)

// CaptureError wraps a platform failure with one of the taxonomy codes.
type CaptureError struct {
	Code error
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return e.Code.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code.Error(), e.Err.Error())
}

func (e *CaptureError) Unwrap() error { return e.Code }

// NewCaptureError builds a coded capture error.
func NewCaptureError(code, err error) *CaptureError {
	return &CaptureError{Code: code, Err: err}
}
