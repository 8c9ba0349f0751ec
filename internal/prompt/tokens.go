package prompt

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Per-message overhead used by chat-formatted requests.
const tokensPerMessage = 4

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func loadCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountTokens estimates the prompt size of messages in cl100k tokens.
func CountTokens(messages []Message) (int, error) {
	enc, errCodec := loadCodec()
	if errCodec != nil {
		return 0, fmt.Errorf("prompt: load tokenizer: %w", errCodec)
	}
	total := 0
	for _, msg := range messages {
		ids, _, errEncode := enc.Encode(msg.Content)
		if errEncode != nil {
			return 0, fmt.Errorf("prompt: encode %s message: %w", msg.Role, errEncode)
		}
		total += len(ids) + tokensPerMessage
	}
	return total, nil
}
