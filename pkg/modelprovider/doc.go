// Package modelprovider defines the interface and types for LLM completion providers.
//
// It contains:
//   - [Provider] interface and embeddable [Adapter] base struct with HTTP helpers, auth, custom headers, and normalized error classification
//   - [Stream], the lazy cancellable token sequence returned by completions
//   - [RetryingProvider], a wrapper adding proactive throttling and bounded backoff retry
//   - [github.com/sabercore/saber/pkg/modelprovider/usage]: thread-safe token usage tracker
//
// Generation parameters travel with each call as a models.Parameters value;
// the Adapter holds only connection state. This package contains no
// provider-specific code. Concrete providers live in separate packages that
// import modelprovider.
package modelprovider
