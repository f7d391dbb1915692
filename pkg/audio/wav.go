package audio

import "encoding/binary"

// EncodeWAV wraps pcm in a canonical 44-byte RIFF/WAVE header for upload to
// batch transcription APIs.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bits = BytesPerSample * 8
	buf := make([]byte, 44+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // linear PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(f.FrameSize()))
	binary.LittleEndian.PutUint16(buf[34:36], bits)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}
