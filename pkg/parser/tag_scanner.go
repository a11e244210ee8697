package parser

import (
	"log/slog"
	"strings"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
)

const (
	contentParam    = "content"
	contentOpenTag  = "<" + contentParam + ">"
	contentCloseTag = "</" + contentParam + ">"
)

type scanState int

const (
	stateText scanState = iota
	stateToolUse
	stateParamValue
)

func (s scanState) String() string {
	switch s {
	case stateText:
		return "text"
	case stateToolUse:
		return "tool_use"
	case stateParamValue:
		return "param_value"
	default:
		return "unknown"
	}
}

// TagScanner extracts text and inline tool invocations of the form
// <tool><param>value</param></tool> from streamed model output.
//
// Only allow-listed tags are recognized; anything else stays literal text.
// Tags are matched at the byte that completes them, so a tag split across
// chunks behaves exactly like an unsplit one.
//
// A TagScanner is not safe for concurrent use.
type TagScanner struct {
	buf   *Buffer
	sink  blocks.Sink
	allow *AllowList
	opts  Options
	log   *slog.Logger
	stats *Stats

	state scanState

	// Open text block, or text waiting to be told apart from an opening tag.
	textHandle   blocks.Handle
	textStart    int
	pendingStart int

	// floor is where the last text handed to a frozen block ends. Tags that
	// start before it are not recognized.
	floor int

	tool       *toolTags
	toolHandle blocks.Handle
	toolStart  int // offset just past the opening tag

	param      paramTags
	paramStart int // offset just past the parameter's opening tag

	contentDropped bool
}

// NewTagScanner creates a scanner over allow. Without WithSink it writes
// into its own blocks.List.
func NewTagScanner(allow *AllowList, opts ...Option) *TagScanner {
	if allow == nil {
		allow = NewAllowList()
	}
	o := buildOptions(opts)
	s := &TagScanner{
		buf:   NewBuffer(o.MaxBufferBytes),
		sink:  o.Sink,
		allow: allow,
		opts:  o,
		log:   o.Logger,
		stats: o.stats,
	}
	s.resetState()
	return s
}

// Sink returns the sink the scanner writes into.
func (s *TagScanner) Sink() blocks.Sink {
	return s.sink
}

// ProcessChunk appends chunk to the buffer, advances the state machine over
// the new bytes and returns a snapshot of all blocks.
//
// If chunk would push the buffer past its cap, an *OverflowError is
// returned and nothing is modified.
func (s *TagScanner) ProcessChunk(chunk string) ([]blocks.ContentBlock, error) {
	start := s.buf.Len()
	if err := s.buf.Append(chunk); err != nil {
		s.stats.Overflows++
		s.log.Error("[TagScanner] response exceeds buffer cap",
			"limit", s.buf.Cap(), "buffered", start, "chunk", len(chunk))
		return nil, err
	}
	s.stats.Chunks++
	s.stats.Bytes += int64(len(chunk))

	data := s.buf.String()
	for pos := start; pos < len(data); pos++ {
		s.step(data, pos)
	}
	s.sync(data)
	return s.sink.Snapshot(), nil
}

// Finalize commits a still-streaming parameter, freezes the scanner's open
// blocks and flushes text held back while it looked like a tag.
func (s *TagScanner) Finalize() {
	data := s.buf.String()

	if s.state == stateParamValue && s.sink.IsOpen(s.toolHandle) {
		raw := data[s.paramStart:]
		s.setParam(s.param.name, normalizeParam(s.param.name, raw[:len(raw)-partialTagSuffix(raw, s.param.close)]))
	}
	if s.state != stateText {
		s.sink.Freeze(s.toolHandle)
		s.log.Debug("[TagScanner] unterminated tool use finalized", "tool", s.tool.name)
	}

	if s.sink.IsOpen(s.textHandle) {
		text := strings.TrimSpace(data[s.textStart:])
		s.sink.UpdateText(s.textHandle, func(tb *blocks.TextBlock) {
			tb.Content = text
			tb.Partial = false
		})
	} else if s.pendingStart >= 0 {
		if text := strings.TrimSpace(data[s.pendingStart:]); text != "" {
			s.sink.Append(blocks.TextBlock{Content: text})
			s.stats.TextBlocks++
		}
	}

	s.enterText()
	s.textHandle = blocks.NoHandle
	s.pendingStart = -1
}

// Reset empties the buffer and returns to the text state. The sink is left
// alone; it may be shared.
func (s *TagScanner) Reset() {
	s.buf.Reset()
	s.resetState()
}

func (s *TagScanner) resetState() {
	s.enterText()
	s.textHandle = blocks.NoHandle
	s.textStart = 0
	s.pendingStart = -1
	s.floor = 0
}

// yield commits text held back as a possible tag before another producer
// appends to the shared sink, so the text keeps its place in the order.
func (s *TagScanner) yield() {
	if s.state != stateText {
		return
	}
	data := s.buf.String()
	s.floor = len(data)
	if s.pendingStart < 0 {
		return
	}
	if text := strings.TrimSpace(data[s.pendingStart:]); text != "" {
		s.textStart = s.pendingStart
		s.textHandle = s.sink.Append(blocks.TextBlock{Content: text, Partial: true})
		s.stats.TextBlocks++
		s.log.Debug("[TagScanner] held-back text committed", "bytes", len(text))
	}
	s.pendingStart = -1
}

func (s *TagScanner) enterText() {
	s.state = stateText
	s.tool = nil
	s.toolHandle = blocks.NoHandle
	s.toolStart = 0
	s.param = paramTags{}
	s.paramStart = 0
	s.contentDropped = false
}

// step advances the state machine by the byte at pos. data[:pos+1] is the
// tail every tag check looks at.
func (s *TagScanner) step(data string, pos int) {
	end := pos + 1
	c := data[pos]

	switch s.state {
	case stateParamValue:
		raw := end - s.paramStart
		if c == '>' && strings.HasSuffix(data[:end], s.param.close) {
			if raw-len(s.param.close) > s.opts.MaxParamBytes {
				s.dropParam(raw - len(s.param.close))
				return
			}
			s.commitParam(data[s.paramStart : end-len(s.param.close)])
			return
		}
		if raw > s.opts.MaxParamBytes+len(s.param.close) {
			s.dropParam(raw)
		}

	case stateToolUse:
		if c != '>' {
			return
		}
		tail := data[:end]
		if strings.HasSuffix(tail, s.tool.close) {
			s.closeTool()
			return
		}
		if p, ok := s.tool.matchParamOpen(tail); ok {
			s.param = p
			s.paramStart = end
			s.state = stateParamValue
			return
		}
		if s.tool.name == s.opts.ContentTool && strings.HasSuffix(tail, contentCloseTag) {
			s.recoverContent(data[s.toolStart:end])
		}

	case stateText:
		if c == '>' {
			if tool := s.allow.matchToolOpen(data[:end]); tool != nil && end-len(tool.open) >= s.floor {
				s.openTool(data, tool, end)
				return
			}
		}
		s.extendText(data, pos)
	}
}

func (s *TagScanner) extendText(data string, pos int) {
	if s.textHandle.Valid() {
		if s.sink.IsOpen(s.textHandle) {
			return
		}
		// Frozen by another producer; later text goes into a new block.
		s.textHandle = blocks.NoHandle
	}
	if s.pendingStart < 0 {
		if isSpace(data[pos]) {
			return
		}
		s.pendingStart = pos
	}
	if s.allow.isToolOpenPrefix(data[s.pendingStart : pos+1]) {
		return
	}
	s.textStart = s.pendingStart
	s.pendingStart = -1
	s.textHandle = s.sink.Append(blocks.TextBlock{Partial: true})
	s.stats.TextBlocks++
}

func (s *TagScanner) openTool(data string, tool *toolTags, end int) {
	tagStart := end - len(tool.open)
	if s.sink.IsOpen(s.textHandle) {
		var text string
		if tagStart > s.textStart {
			text = strings.TrimSpace(data[s.textStart:tagStart])
		}
		s.sink.UpdateText(s.textHandle, func(tb *blocks.TextBlock) {
			tb.Content = text
			tb.Partial = false
		})
	}
	s.textHandle = blocks.NoHandle
	s.pendingStart = -1

	s.state = stateToolUse
	s.tool = tool
	s.toolStart = end
	s.toolHandle = s.sink.Append(blocks.ToolUseBlock{
		ID:      s.opts.NewID(),
		Name:    tool.name,
		Params:  map[string]any{},
		Partial: true,
	})
	s.stats.ToolUses++
	s.log.Debug("[TagScanner] tool use opened", "tool", tool.name, "offset", tagStart)
}

func (s *TagScanner) closeTool() {
	s.sink.Freeze(s.toolHandle)
	s.log.Debug("[TagScanner] tool use closed", "tool", s.tool.name)
	s.enterText()
}

func (s *TagScanner) commitParam(value string) {
	s.setParam(s.param.name, normalizeParam(s.param.name, value))
	s.state = stateToolUse
	s.param = paramTags{}
}

func (s *TagScanner) dropParam(size int) {
	name := s.param.name
	s.sink.UpdateToolUse(s.toolHandle, func(tb *blocks.ToolUseBlock) {
		delete(tb.Params, name)
	})
	s.stats.ParamOverflows++
	s.log.Warn("[TagScanner] parameter exceeds size cap, discarded",
		"tool", s.tool.name, "param", name, "size", size, "limit", s.opts.MaxParamBytes)
	if name == contentParam {
		s.contentDropped = true
	}
	s.state = stateToolUse
	s.param = paramTags{}
}

// recoverContent reparses the content parameter from the whole tool body so
// a payload containing its own closing tag is kept intact. The size cap
// applies to the recovered value, and content already discarded as too large
// stays discarded.
func (s *TagScanner) recoverContent(body string) {
	param, ok := s.tool.param(contentParam)
	if !ok || s.contentDropped {
		return
	}
	first := strings.Index(body, contentOpenTag)
	last := strings.LastIndex(body, contentCloseTag)
	if first < 0 || last < first+len(contentOpenTag) {
		return
	}
	raw := body[first+len(contentOpenTag) : last]
	if len(raw) > s.opts.MaxParamBytes {
		s.param = param
		s.dropParam(len(raw))
		return
	}
	s.setParam(contentParam, normalizeParam(contentParam, raw))
}

func (s *TagScanner) setParam(name, value string) {
	s.sink.UpdateToolUse(s.toolHandle, func(tb *blocks.ToolUseBlock) {
		if tb.Params == nil {
			tb.Params = make(map[string]any)
		}
		tb.Params[name] = value
	})
}

// sync copies the in-progress text and parameter value into their blocks.
// It runs once per chunk rather than once per byte.
func (s *TagScanner) sync(data string) {
	if s.sink.IsOpen(s.textHandle) {
		text := strings.TrimSpace(data[s.textStart:])
		s.sink.UpdateText(s.textHandle, func(tb *blocks.TextBlock) {
			tb.Content = text
		})
	}
	if s.state == stateParamValue && s.sink.IsOpen(s.toolHandle) {
		raw := data[s.paramStart:]
		raw = raw[:len(raw)-partialTagSuffix(raw, s.param.close)]
		s.setParam(s.param.name, normalizeParam(s.param.name, raw))
	}
}

// normalizeParam strips one leading and one trailing newline from content
// and all surrounding whitespace from everything else.
func normalizeParam(name, value string) string {
	if name == contentParam {
		value = strings.TrimPrefix(value, "\n")
		return strings.TrimSuffix(value, "\n")
	}
	return strings.TrimSpace(value)
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	for n := min(len(s), len(tag)-1); n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
