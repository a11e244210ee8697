// Package parser turns streamed model output into ordered content blocks.
//
// Two producers share one blocks.Sink: a TagScanner for tool invocations
// written inline as <tool><param>value</param></tool>, and a
// DeltaAccumulator for structured tool-call deltas. Parser wires both
// together for one assistant turn.
package parser

import (
	"fmt"
	"log/slog"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
	"github.com/tiancaiamao/toolstream/pkg/config"
	"github.com/tiancaiamao/toolstream/pkg/llm"
)

// Parser parses one assistant turn. It is not safe for concurrent use;
// each turn or session owns its own Parser.
type Parser struct {
	sink    blocks.Sink
	scanner *TagScanner
	deltas  *DeltaAccumulator
	stats   *Stats
	log     *slog.Logger
}

// New creates a parser accepting the tools and parameters in allow.
func New(allow *AllowList, opts ...Option) *Parser {
	if allow == nil {
		allow = NewAllowList()
	}
	stats := &Stats{}
	o := buildOptions(opts)
	shared := make([]Option, 0, len(opts)+3)
	shared = append(shared, opts...)
	shared = append(shared, WithSink(o.Sink), WithLogger(o.Logger), withStats(stats))
	scanner := NewTagScanner(allow, shared...)
	deltas := NewDeltaAccumulator(allow, shared...)
	deltas.beforeEmit = scanner.yield
	return &Parser{
		sink:    o.Sink,
		scanner: scanner,
		deltas:  deltas,
		stats:   stats,
		log:     o.Logger,
	}
}

// FromConfig creates a parser from configuration. Options given here take
// precedence over cfg.
func FromConfig(cfg config.ParserConfig, opts ...Option) (*Parser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parser config: %w", err)
	}
	base := []Option{
		WithMaxBufferBytes(cfg.MaxBufferBytes),
		WithMaxParamBytes(cfg.MaxParamBytes),
		WithContentTool(cfg.ContentTool),
	}
	return New(AllowListFromConfig(cfg.Tools), append(base, opts...)...), nil
}

// ProcessChunk feeds streamed text and returns a snapshot of all blocks.
// The only error is an *OverflowError, after which the turn should be
// abandoned.
func (p *Parser) ProcessChunk(chunk string) ([]blocks.ContentBlock, error) {
	return p.scanner.ProcessChunk(chunk)
}

// ProcessDeltas feeds structured tool-call fragments.
func (p *Parser) ProcessDeltas(deltas []llm.CallDelta) {
	p.deltas.ProcessDeltas(deltas)
}

// ProcessStreamChunk feeds everything a decoded stream payload carries.
func (p *Parser) ProcessStreamChunk(chunk llm.StreamChunk) ([]blocks.ContentBlock, error) {
	if chunk.Content != "" {
		if _, err := p.ProcessChunk(chunk.Content); err != nil {
			return nil, err
		}
	}
	if len(chunk.ToolCalls) > 0 {
		p.ProcessDeltas(chunk.ToolCalls)
	}
	return p.ContentBlocks(), nil
}

// ContentBlocks returns a snapshot of all blocks. Mutating it does not
// affect the parser.
func (p *Parser) ContentBlocks() []blocks.ContentBlock {
	return p.sink.Snapshot()
}

// Finalize ends the turn: open blocks are frozen, held-back text is
// flushed and calls still waiting for arguments are resolved.
func (p *Parser) Finalize() []blocks.ContentBlock {
	p.scanner.Finalize()
	p.deltas.Finalize()
	if h, ok := p.sink.Open(); ok {
		p.sink.Freeze(h)
	}
	p.log.Debug("[Parser] finalized", "blocks", p.sink.Len(), "stats", p.stats.String())
	return p.sink.Snapshot()
}

// Reset returns the parser to its freshly constructed state.
func (p *Parser) Reset() {
	p.sink.Reset()
	p.scanner.Reset()
	p.deltas.Reset()
	*p.stats = Stats{}
}

// Stats returns a copy of the counters.
func (p *Parser) Stats() Stats {
	return *p.stats
}
