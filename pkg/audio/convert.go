package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Converter turns a PCM stream from one [Format] into another. Channels are
// mixed first (average down-mix, duplicated up-mix), then the stream is
// resampled with linear interpolation.
//
// Chunks may split sample frames; the remainder is carried to the next call.
// A Converter keeps per-stream state and must not be shared between streams.
type Converter struct {
	From, To Format

	pending []byte
	// pos is the fractional read position into the next input frame,
	// continued across chunks so that resampling has no seams.
	pos  float64
	last []int16
}

// NewConverter returns a Converter between two valid formats.
func NewConverter(from, to Format) (*Converter, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("audio: invalid conversion %s -> %s", from, to)
	}
	if from != to {
		slog.Info("audio: converting input", "from", from.String(), "to", to.String())
	}
	return &Converter{From: from, To: to}, nil
}

// Passthrough reports whether Convert returns its input unchanged.
func (c *Converter) Passthrough() bool { return c.From == c.To }

// Convert converts the next chunk of the stream.
func (c *Converter) Convert(chunk []byte) []byte {
	if c.Passthrough() {
		return chunk
	}
	data := chunk
	if len(c.pending) > 0 {
		data = append(c.pending, chunk...)
		c.pending = nil
	}
	fs := c.From.FrameSize()
	whole := len(data) - len(data)%fs
	if whole < len(data) {
		c.pending = append([]byte(nil), data[whole:]...)
	}
	if whole == 0 {
		return nil
	}

	frames := mixChannels(Samples(data[:whole]), c.From.Channels, c.To.Channels)
	if c.From.SampleRate != c.To.SampleRate {
		frames = c.resample(frames)
	}
	return Bytes(frames)
}

// mixChannels converts interleaved samples from one channel count to another.
// Mono targets get the average of all source channels, a mono source is
// copied into every target channel, and otherwise channels map one to one
// with any extra target channels carrying the average.
func mixChannels(in []int16, from, to int) []int16 {
	if from == to {
		return in
	}
	n := len(in) / from
	out := make([]int16, n*to)
	for i := range n {
		src := in[i*from : (i+1)*from]
		var sum int32
		for _, v := range src {
			sum += int32(v)
		}
		avg := int16(sum / int32(from))
		for ch := range to {
			if ch < from && from > 1 && to > 1 {
				out[i*to+ch] = src[ch]
			} else {
				out[i*to+ch] = avg
			}
		}
	}
	return out
}

// resample resamples interleaved frames with To.Channels channels from
// From.SampleRate to To.SampleRate.
func (c *Converter) resample(in []int16) []int16 {
	ch := c.To.Channels
	n := len(in) / ch
	if n == 0 {
		return nil
	}
	step := float64(c.From.SampleRate) / float64(c.To.SampleRate)

	// frame returns input frame i, where i == -1 is the last frame of the
	// previous chunk.
	frame := func(i, k int) float64 {
		if i < 0 {
			if c.last == nil {
				return float64(in[k])
			}
			return float64(c.last[k])
		}
		return float64(in[i*ch+k])
	}

	var out []int16
	pos := c.pos
	for pos < float64(n-1) {
		i := int(pos)
		if pos < 0 {
			i = -1
		}
		frac := pos - float64(i)
		for k := range ch {
			s0, s1 := frame(i, k), frame(i+1, k)
			out = append(out, int16(s0+(s1-s0)*frac))
		}
		pos += step
	}
	// Carry the position relative to the start of the next chunk, whose
	// first frame follows this chunk's last frame.
	c.pos = pos - float64(n)
	c.last = append(c.last[:0], in[(n-1)*ch:]...)
	return out
}

// Pump reads PCM from r in chunks of chunkBytes, converts each chunk with conv
// (nil for no conversion) and hands it to sink. It returns nil at EOF and
// ctx.Err() on cancellation.
func Pump(ctx context.Context, r io.Reader, chunkBytes int, conv *Converter, sink func([]byte) error) error {
	if chunkBytes <= 0 {
		return errors.New("audio: chunk size must be positive")
	}
	buf := make([]byte, chunkBytes)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if conv != nil {
				data = conv.Convert(data)
			}
			if len(data) > 0 {
				if serr := sink(data); serr != nil {
					return serr
				}
			}
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return fmt.Errorf("audio: read: %w", err)
		}
	}
}
