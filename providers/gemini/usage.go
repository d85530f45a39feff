package gemini

import (
	"math"
	"unicode/utf8"

	"github.com/nijaru/interview-feedback/models"
)

const charsPerToken = 4

// EstimateUsage approximates token usage at one token per four characters of
// prompt or response, plus tokensPerSecond for each second of video.
func EstimateUsage(prompt, response string, durationSeconds, tokensPerSecond float64) models.ProviderUsage {
	input := ceilDiv(utf8.RuneCountInString(prompt), charsPerToken)
	if durationSeconds > 0 && tokensPerSecond > 0 {
		input += int(math.Ceil(durationSeconds * tokensPerSecond))
	}
	output := ceilDiv(utf8.RuneCountInString(response), charsPerToken)

	return models.ProviderUsage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
		Estimated:    true,
	}
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
