// Package audio provides helpers for the raw 16-bit signed little-endian PCM
// format used on the device link. The server treats audio as opaque sample
// data; these functions only reinterpret and repackage it, they never resample
// or transcode.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// DecodeInt16 reinterprets little-endian PCM bytes as int16 samples.
// A trailing odd byte is ignored.
func DecodeInt16(pcm []byte) []int16 {
	n := len(pcm) / BytesPerSample
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return samples
}

// EncodeInt16 serialises int16 samples as little-endian PCM bytes.
func EncodeInt16(samples []int16) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(s))
	}
	return pcm
}

// Normalize converts int16 samples to float32 in the range [-1, 1), dividing
// by 32768 as speech-recognition front ends expect.
func Normalize(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// NormalizeBytes decodes little-endian PCM bytes straight to normalized
// float32 samples. Equivalent to Normalize(DecodeInt16(pcm)) without the
// intermediate slice.
func NormalizeBytes(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Denormalize converts float32 samples in [-1, 1] back to int16, clamping
// out-of-range values instead of wrapping.
func Denormalize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * 32768.0
		switch {
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		case v < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// Duration returns the playback duration of byteCount bytes of mono PCM at
// the given sample rate. Returns 0 for non-positive rates.
func Duration(byteCount, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteCount / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a standard RIFF/WAV
// container, suitable for multipart uploads or file downloads.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// StripWAV returns the PCM payload of a RIFF/WAV byte stream by locating the
// "data" sub-chunk. If b is not a WAV container it is returned unchanged, so
// callers can pass through servers that already emit raw PCM.
func StripWAV(b []byte) []byte {
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return b
	}
	// Walk sub-chunks starting after the RIFF header.
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if id == "data" {
			end := off + 8 + size
			if end > len(b) {
				end = len(b)
			}
			return b[off+8 : end]
		}
		off += 8 + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}
	return b
}
