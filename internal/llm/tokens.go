package llm

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func getEncoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel("gpt-4o-mini")
	})
	return enc, encErr
}

// CountTokens returns the token count of text under the gpt-4o-mini
// encoding. Falls back to a byte/4 estimate if the encoding can't be
// loaded. Nothing in the pipeline calls it, and run_stats.json carries
// no token counts.
func CountTokens(text string) int {
	tke, err := getEncoding()
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(tke.Encode(text, nil, nil))
}

// TrimToTokens truncates text to at most maxTokens tokens (maxTokens*4
// bytes if the encoding can't be loaded). No prompt in the pipeline is
// trimmed with it.
func TrimToTokens(text string, maxTokens int) string {
	tke, err := getEncoding()
	if err != nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return text[:limit]
	}
	ids := tke.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return tke.Decode(ids[:maxTokens])
}
