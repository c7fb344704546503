// Package llmfactory builds chat model clients from configuration. It
// keeps one client per provider, reuses it across calls, and picks the
// model for a named agent from the configured preference lists.
package llmfactory
