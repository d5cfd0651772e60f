package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// ErrInvalidWAV is returned by [DecodeWAV] for input that is not a PCM16 WAV file.
var ErrInvalidWAV = errors.New("audio: invalid wav")

// EncodeWAV wraps raw PCM16 in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * 2
	blockAlign := f.Channels * 2
	buf := make([]byte, wavHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// DecodeWAV parses a PCM16 WAV file and returns its samples and format.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (Recording, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Recording{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		f       Format
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			if id == "data" {
				// Streamed WAVs often carry a bogus data size; take what is there.
				size = len(data) - body
			} else {
				return Recording{}, fmt.Errorf("%w: truncated %q chunk", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Recording{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return Recording{}, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != 16 {
				return Recording{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt || !f.Valid() {
				return Recording{}, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			pcm := data[body : body+size]
			pcm = pcm[:len(pcm)&^1]
			return Recording{PCM: pcm, Format: f}, nil
		}
		off = body + size + size%2
	}
	return Recording{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}
