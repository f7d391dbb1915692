// Package audio holds the PCM plumbing between the capture source and the
// transcription providers: format arithmetic, level metering, WAV framing and
// sample-rate/channel conversion.
//
// All PCM in this package is signed 16-bit little-endian, interleaved when
// there is more than one channel.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the size of one 16-bit PCM sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether both fields are positive.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// FrameSize returns the number of bytes per sample frame (one sample for every
// channel).
func (f Format) FrameSize() int { return f.Channels * BytesPerSample }

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int { return f.SampleRate * f.FrameSize() }

// Duration returns the playback length of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Bytes returns the frame-aligned number of bytes that plays for d.
func (f Format) Bytes(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	if fs := f.FrameSize(); fs > 0 {
		n -= n % fs
	}
	return n
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Samples decodes pcm into int16 samples. A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Bytes encodes samples as little-endian PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// RMS returns the root-mean-square level of pcm in sample units (0-32767).
// It returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Float32Mono down-mixes pcm with the given channel count to mono float32
// samples in [-1, 1], as expected by whisper.cpp.
func Float32Mono(pcm []byte, channels int) []float32 {
	channels = max(channels, 1)
	frames := len(pcm) / (BytesPerSample * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * BytesPerSample
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}
