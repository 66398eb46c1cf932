package text

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base byte-pair encoding.
// When the encoding cannot be initialised (offline first run without a
// cached vocabulary), it falls back to the ceil(len/4) estimate.
func CountTokens(s string) int {
	if s == "" {
		return 0
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}
