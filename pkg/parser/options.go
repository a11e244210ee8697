package parser

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
	"github.com/tiancaiamao/toolstream/pkg/config"
)

// Option is a functional option for the parser and its components.
type Option func(*Options)

// Options holds optional parameters shared by TagScanner, DeltaAccumulator
// and Parser.
type Options struct {
	// Logger receives boundary and drop events. Defaults to slog.Default().
	Logger *slog.Logger

	// MaxBufferBytes caps the scanner buffer and each call's argument text.
	MaxBufferBytes int

	// MaxParamBytes caps a single parameter value while it streams.
	MaxParamBytes int

	// ContentTool names the tool whose "content" parameter may contain its
	// own closing tag. Empty disables the recovery.
	ContentTool string

	// NewID generates ids for tool uses found in inline tags.
	NewID func() string

	// Sink receives the blocks. Defaults to a fresh blocks.List.
	Sink blocks.Sink

	stats *Stats
}

func defaultOptions() Options {
	return Options{
		MaxBufferBytes: config.DefaultMaxBufferBytes,
		MaxParamBytes:  config.DefaultMaxParamBytes,
		ContentTool:    config.DefaultContentTool,
		NewID:          newToolUseID,
	}
}

func buildOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxBufferBytes <= 0 {
		o.MaxBufferBytes = config.DefaultMaxBufferBytes
	}
	if o.MaxParamBytes <= 0 {
		o.MaxParamBytes = config.DefaultMaxParamBytes
	}
	if o.NewID == nil {
		o.NewID = newToolUseID
	}
	if o.Sink == nil {
		o.Sink = blocks.NewList()
	}
	if o.stats == nil {
		o.stats = &Stats{}
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMaxBufferBytes sets the hard cap on accumulated output.
func WithMaxBufferBytes(n int) Option {
	return func(o *Options) {
		o.MaxBufferBytes = n
	}
}

// WithMaxParamBytes sets the cap on a single streaming parameter value.
func WithMaxParamBytes(n int) Option {
	return func(o *Options) {
		o.MaxParamBytes = n
	}
}

// WithContentTool sets the tool whose content parameter gets closing-tag
// recovery. Pass "" to disable it.
func WithContentTool(name string) Option {
	return func(o *Options) {
		o.ContentTool = name
	}
}

// WithIDGenerator replaces the generator for inline tool-use ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) {
		o.NewID = fn
	}
}

// WithSink makes the component write into an existing sink.
func WithSink(s blocks.Sink) Option {
	return func(o *Options) {
		o.Sink = s
	}
}

func withStats(s *Stats) Option {
	return func(o *Options) {
		o.stats = s
	}
}

func newToolUseID() string {
	return "toolu_" + uuid.NewString()
}
