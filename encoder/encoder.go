package encoder

import (
	"encoding/binary"
	"fmt"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// New returns an encoder for the given upload format.
func New(format string) (Encoder, error) {
	switch format {
	case "flac":
		return NewFlac()
	case "wav":
		return NewWav(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (use flac or wav)", format)
	}
}

// EncodePCM runs little-endian 16-bit PCM through enc in BlockSize blocks
// and finalizes it, returning the encoded bytes.
func EncodePCM(enc Encoder, pcm []byte) ([]byte, error) {
	samples := make([]int16, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		samples = append(samples, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	for len(samples) > 0 {
		n := min(len(samples), BlockSize)
		if err := enc.EncodeBlock(samples[:n]); err != nil {
			return nil, err
		}
		samples = samples[n:]
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
