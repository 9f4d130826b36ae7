package encoder

import (
	"encoding/binary"
	"fmt"
)

const WavHeaderSize = 44

// WavEncoder buffers PCM16 samples and prepends a RIFF header on Close.
type WavEncoder struct {
	pcm         []byte
	out         []byte
	totalFrames uint64
}

func NewWav() *WavEncoder {
	return &WavEncoder{}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	for _, s := range block {
		e.pcm = binary.LittleEndian.AppendUint16(e.pcm, uint16(s))
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.out = make([]byte, WavHeaderSize+len(e.pcm))
	writeWavHeader(e.out, SampleRate, len(e.pcm))
	copy(e.out[WavHeaderSize:], e.pcm)
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	return e.out
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}

func writeWavHeader(buf []byte, sampleRate, dataSize int) {
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WavHeaderSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*Channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], Channels*2) // block align
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
}

// DecodeWav extracts little-endian PCM16 and the sample rate from a RIFF
// WAV payload. Raw headerless PCM16 is passed through at SampleRate, which
// keeps the API server tolerant of minimal clients.
func DecodeWav(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, SampleRate, nil
	}

	sampleRate = SampleRate
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels := binary.LittleEndian.Uint16(data[body+2:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("wav: unsupported encoding (format=%d bits=%d), need PCM16", format, bits)
			}
			if channels != 1 {
				return nil, 0, fmt.Errorf("wav: %d channels not supported, need mono", channels)
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
		case "data":
			return data[body : body+size], sampleRate, nil
		}
		// Chunks are word-aligned
		if size%2 == 1 {
			size++
		}
		pos = body + size
	}
	return nil, 0, fmt.Errorf("wav: no data chunk found")
}
