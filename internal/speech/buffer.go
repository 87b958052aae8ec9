package speech

import (
	"strings"
)

// DefaultTerminators end a synthesis unit.
var DefaultTerminators = []string{"。", "！", "？", "\n"}

// SentenceBuffer accumulates streamed text. As soon as the buffer contains a
// terminator the whole buffer becomes one unit, including anything that
// arrived after the terminator in the same fragment.
type SentenceBuffer struct {
	terminators []string
	buf         strings.Builder
}

func NewSentenceBuffer(terminators []string) *SentenceBuffer {
	if len(terminators) == 0 {
		terminators = DefaultTerminators
	}
	return &SentenceBuffer{terminators: terminators}
}

// Add appends text and returns a complete unit, if any.
func (b *SentenceBuffer) Add(text string) (string, bool) {
	b.buf.WriteString(text)

	content := b.buf.String()
	for _, t := range b.terminators {
		if strings.Contains(content, t) {
			b.buf.Reset()
			return content, true
		}
	}
	return "", false
}

// Flush returns the remainder if it holds anything but whitespace.
func (b *SentenceBuffer) Flush() (string, bool) {
	content := b.buf.String()
	b.buf.Reset()
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}

func (b *SentenceBuffer) Pending() string {
	return b.buf.String()
}
