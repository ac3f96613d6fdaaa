package tts

import (
	"encoding/binary"
)

// WAVHeaderSize is the fixed size of the canonical linear-PCM RIFF header.
const WAVHeaderSize = 44

// MergePCMChunks concatenates raw PCM payloads byte-exactly in input order.
func MergePCMChunks(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	merged := make([]byte, 0, total)
	for _, c := range chunks {
		merged = append(merged, c...)
	}
	return merged
}

// NewWAVFile wraps raw PCM samples in a minimal RIFF/WAVE container: the
// 44-byte header followed by the untouched payload. No re-encoding happens,
// so the output length is always WAVHeaderSize + len(pcm).
func NewWAVFile(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	buf := make([]byte, WAVHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataLen)
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: linear PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataLen)

	copy(buf[WAVHeaderSize:], pcm)
	return buf
}
