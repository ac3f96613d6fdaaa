package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinChunkSize is the smallest chunk the splitter will emit, except
// possibly for the final one.
const DefaultMinChunkSize = 32

var sentenceEndPattern = regexp.MustCompile(`([.!?])\s+`)

// SplitIntoChunks splits text along sentence boundaries into chunks of at
// least minSize characters. Sentences accumulate into the running chunk;
// the chunk is flushed once it has reached minSize and further sentences
// remain, so only the final chunk may fall short. A sentence is never split
// in the middle. For minSize <= 1 the text is returned as a single chunk.
func SplitIntoChunks(text string, minSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if minSize <= 1 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	runeCount := 0
	for i, sentence := range sentences {
		if current.Len() > 0 {
			current.WriteByte(' ')
			runeCount++
		}
		current.WriteString(sentence)
		runeCount += utf8.RuneCountInString(sentence)

		last := i == len(sentences)-1
		// minSize is in characters, not bytes.
		if runeCount >= minSize && !last {
			chunks = append(chunks, current.String())
			current.Reset()
			runeCount = 0
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences cuts on sentence-terminal punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	marked := sentenceEndPattern.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
