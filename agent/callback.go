package agent

import (
	"context"
	"fmt"
	"io"

	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// Callback observes loop progress. Implementations run inline between
// model and tool calls and must be fast.
type Callback interface {
	OnRoundStart(ctx context.Context, round int)
	OnToolCall(ctx context.Context, tool, arguments string)
	OnToolResult(ctx context.Context, tool, result string, err error)
}

// NoopCallback does nothing.
type NoopCallback struct{}

var _ Callback = (*NoopCallback)(nil)

func NewNoopCallback() *NoopCallback {
	return &NoopCallback{}
}

func (NoopCallback) OnRoundStart(context.Context, int)                {}
func (NoopCallback) OnToolCall(context.Context, string, string)       {}
func (NoopCallback) OnToolResult(context.Context, string, string, error) {
}

// PrinterCallback writes loop progress to the Writer, for interactive use.
type PrinterCallback struct {
	Out io.Writer
}

var _ Callback = (*PrinterCallback)(nil)

func NewPrinterCallback(out io.Writer) *PrinterCallback {
	return &PrinterCallback{Out: out}
}

func (p *PrinterCallback) OnRoundStart(_ context.Context, round int) {
	if round > 1 {
		fmt.Fprintf(p.Out, "... round %d\n", round)
	}
}

func (p *PrinterCallback) OnToolCall(_ context.Context, tool, arguments string) {
	fmt.Fprintf(p.Out, "-> %s %s\n", tool, slices.StringUpto(arguments, 120))
}

func (p *PrinterCallback) OnToolResult(_ context.Context, tool, result string, err error) {
	if err != nil {
		fmt.Fprintf(p.Out, "<- %s failed: %s\n", tool, err.Error())
		return
	}
	fmt.Fprintf(p.Out, "<- %s %s\n", tool, slices.StringUpto(result, 120))
}

// LoggerCallback reports loop progress to the package logger.
type LoggerCallback struct {
	logger *xlog.PackageLogger
}

var _ Callback = (*LoggerCallback)(nil)

func NewLoggerCallback(logger *xlog.PackageLogger) *LoggerCallback {
	return &LoggerCallback{logger: logger}
}

func (l *LoggerCallback) OnRoundStart(ctx context.Context, round int) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "round_start",
		"round", round,
	)
}

func (l *LoggerCallback) OnToolCall(ctx context.Context, tool, arguments string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_call",
		"tool", tool,
		"arguments", slices.StringUpto(arguments, 120),
	)
}

func (l *LoggerCallback) OnToolResult(ctx context.Context, tool, result string, err error) {
	if err != nil {
		l.logger.ContextKV(ctx, xlog.WARNING,
			"event", "tool_error",
			"tool", tool,
			"err", err.Error(),
		)
		return
	}
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_result",
		"tool", tool,
		"result", slices.StringUpto(result, 120),
	)
}
