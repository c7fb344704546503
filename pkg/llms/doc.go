// Package llms defines the provider-neutral contract for conversational
// language models: messages with typed content parts, tool definitions, and
// the Model interface the orchestration loop drives.
//
// Each subpackage implements the contract for a specific provider on top of
// its official SDK. The `llms.go` file contains the types and interfaces for
// interacting with different LLMs, and `options.go` provides the options used
// to configure individual calls.
package llms
