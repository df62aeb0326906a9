// Package chats provides a provider-agnostic data model for LLM chat interactions.
//
// It is organized into sub-packages:
//   - [github.com/sabercore/saber/pkg/chats/role]: conversation roles (system, user, assistant)
//   - [github.com/sabercore/saber/pkg/chats/message]: messages carrying a role, text, timestamp, and citations
//   - [github.com/sabercore/saber/pkg/chats/chat]: append-only conversation container
//
// No provider or API code is included; chats is a foundation layer
// that adapters can build on.
package chats
