package tts

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestMergePCMChunks(t *testing.T) {
	c1 := []byte{1, 2, 3}
	c2 := []byte{4, 5}
	c3 := []byte{6, 7, 8, 9}

	merged := MergePCMChunks([][]byte{c1, c2, c3})
	if len(merged) != len(c1)+len(c2)+len(c3) {
		t.Fatalf("merged length %d, want %d", len(merged), len(c1)+len(c2)+len(c3))
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !bytes.Equal(merged, want) {
		t.Fatalf("byte order not preserved: %v", merged)
	}
}

func TestMergePCMChunksEmpty(t *testing.T) {
	if got := MergePCMChunks(nil); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
	if got := MergePCMChunks([][]byte{{}, {1}, {}}); !bytes.Equal(got, []byte{1}) {
		t.Fatalf("got %v", got)
	}
}

func TestNewWAVFile(t *testing.T) {
	pcm := make([]byte, 480)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	wav := NewWAVFile(pcm, 24000, 1, 16)

	if len(wav) != WAVHeaderSize+len(pcm) {
		t.Fatalf("length %d, want %d", len(wav), WAVHeaderSize+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" {
		t.Fatalf("missing RIFF magic: %q", wav[0:4])
	}
	if string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing WAVE magic: %q", wav[8:12])
	}
	if string(wav[12:16]) != "fmt " {
		t.Fatalf("missing fmt chunk: %q", wav[12:16])
	}
	if string(wav[36:40]) != "data" {
		t.Fatalf("missing data chunk: %q", wav[36:40])
	}

	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Fatalf("riff size %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Fatalf("audio format %d, want 1 (linear PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Fatalf("channels %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Fatalf("sample rate %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000 {
		t.Fatalf("byte rate %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 2 {
		t.Fatalf("block align %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Fatalf("bit depth %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size %d, want %d", got, len(pcm))
	}

	if !bytes.Equal(wav[WAVHeaderSize:], pcm) {
		t.Fatal("payload not byte-exact")
	}
}
