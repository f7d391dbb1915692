// Package vad defines the engine interface for voice activity detection.
//
// A detector classifies fixed-size PCM frames as speech or silence. The
// follower uses it to keep voice-activated scrolling going while the reader
// is audibly speaking, independent of any recogniser.
//
// Each session keeps its own smoothing state, so independent audio streams
// need independent sessions. Engines must be safe for concurrent use; a
// single session is not.
package vad

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by [SessionHandle.ProcessFrame] after Close.
var ErrClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the rate of the PCM passed to ProcessFrame in Hz.
	SampleRate int

	// Channels is the interleaved channel count of the PCM.
	Channels int

	// FrameMs is the duration of each frame in milliseconds: 10, 20 or 30.
	FrameMs int

	// SpeechThreshold is the probability at or above which a frame starts a
	// speech segment. Range: (0, 1].
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts towards
	// ending a speech segment. It must not exceed SpeechThreshold.
	SilenceThreshold float64
}

// FrameBytes returns the size in bytes of one frame of 16-bit PCM.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameMs / 1000 * c.Channels * 2
}

// Validate reports the first invalid field of c.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0 || c.Channels <= 0:
		return fmt.Errorf("vad: invalid format %d Hz, %d channels", c.SampleRate, c.Channels)
	case c.FrameMs != 10 && c.FrameMs != 20 && c.FrameMs != 30:
		return fmt.Errorf("vad: frame size %d ms is not one of 10, 20, 30", c.FrameMs)
	case c.SpeechThreshold <= 0 || c.SpeechThreshold > 1:
		return fmt.Errorf("vad: speech threshold %.2f is out of range (0, 1]", c.SpeechThreshold)
	case c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold:
		return fmt.Errorf("vad: silence threshold %.2f must be in [0, %.2f]", c.SilenceThreshold, c.SpeechThreshold)
	}
	return nil
}

// SessionHandle is a detection session for one audio stream.
type SessionHandle interface {
	// ProcessFrame classifies exactly one frame of [Config.FrameBytes]
	// bytes. It must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears the smoothing state without closing the session.
	Reset()

	// Close releases the session. Calling it more than once returns nil.
	Close() error
}

// Engine creates detection sessions.
type Engine interface {
	// NewSession returns a session ready for frames, or an error if cfg is
	// not supported.
	NewSession(cfg Config) (SessionHandle, error)
}
