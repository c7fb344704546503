package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TokenEnvVarName is the environment variable consulted when no token
// option is given.
const TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

// Options configure the Anthropic client.
type Options struct {
	Token      string
	Model      string
	BaseURL    string
	HTTPClient option.HTTPClient

	// AnthropicBetaHeader is sent as the anthropic-beta request header
	// when set, opting the client into the named beta features.
	AnthropicBetaHeader string
}

type Option func(*Options)

// WithToken sets the API token. Defaults to $ANTHROPIC_API_KEY.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel sets the default model for the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL points the client at a non-default API host, such as a
// proxy or gateway.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithHTTPClient substitutes the transport. Defaults to
// http.DefaultClient.
func WithHTTPClient(client option.HTTPClient) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithAnthropicBetaHeader opts requests into the named beta features.
func WithAnthropicBetaHeader(value string) Option {
	return func(opts *Options) {
		opts.AnthropicBetaHeader = value
	}
}
