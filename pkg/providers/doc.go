// Package providers groups the concrete LLM backend adapters.
//
// Each sub-package implements [github.com/sabercore/saber/pkg/modelprovider.Provider]
// for one vendor API:
//   - [github.com/sabercore/saber/pkg/providers/openai]: OpenAI chat completions (SSE) and embeddings
//   - [github.com/sabercore/saber/pkg/providers/anthropic]: Anthropic Messages API (SSE)
//   - [github.com/sabercore/saber/pkg/providers/gemini]: Google Gemini via the genai SDK
//   - [github.com/sabercore/saber/pkg/providers/grok]: xAI Grok (OpenAI-compatible wire format)
//
// This package contains no provider-specific code; concrete adapters live in
// the sub-packages.
package providers
