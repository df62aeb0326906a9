package modelprovider

import (
	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/chats/message"
)

// perMessageOverhead is the estimated token overhead for each message (role,
// structure delimiters, etc.).
const perMessageOverhead = 4

// TokenEstimator estimates token counts for chat messages. It uses a
// character-to-token heuristic (approximately 1 token per 4 characters for
// English text). The zero value is ready to use.
type TokenEstimator struct{}

// charsToTokens converts a character count to an estimated token count using the
// 1-token-per-4-characters heuristic.
func charsToTokens(chars int) int {
	return (chars + 3) / 4 // round up
}

// EstimateText estimates the tokens a plain text string will consume.
func (e *TokenEstimator) EstimateText(s string) int {
	return charsToTokens(len(s))
}

// EstimateChars estimates tokens for a text of n bytes without needing the
// text itself. Useful for accounting over streamed output.
func (e *TokenEstimator) EstimateChars(n int) int {
	return charsToTokens(n)
}

// EstimateChat estimates the total input tokens for a chat conversation,
// accounting for each message's text and per-message structural overhead.
func (e *TokenEstimator) EstimateChat(c *chat.Chat) int {
	tokens := 0

	c.Each(func(_ int, m message.Message) bool {
		tokens += perMessageOverhead + charsToTokens(len(m.Text))
		return true
	})

	return tokens
}
