package parser

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
	"github.com/tiancaiamao/toolstream/pkg/config"
)

// ignoreID compares blocks without their generated ids.
var ignoreID = cmpopts.IgnoreFields(blocks.ToolUseBlock{}, "ID")

func testAllowList() *AllowList {
	return AllowListFromConfig(config.DefaultTools())
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tool-%d", n)
	}
}

func newTestParser(opts ...Option) *Parser {
	base := []Option{
		WithIDGenerator(sequentialIDs()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(testAllowList(), append(base, opts...)...)
}

func feed(t *testing.T, p *Parser, chunks ...string) []blocks.ContentBlock {
	t.Helper()
	for _, chunk := range chunks {
		_, err := p.ProcessChunk(chunk)
		require.NoError(t, err)
	}
	return p.ContentBlocks()
}

// parseAll feeds chunks and finalizes.
func parseAll(t *testing.T, chunks ...string) []blocks.ContentBlock {
	t.Helper()
	p := newTestParser()
	feed(t, p, chunks...)
	return p.Finalize()
}

func requireBlocks(t *testing.T, want, got []blocks.ContentBlock, opts ...cmp.Option) {
	t.Helper()
	if diff := cmp.Diff(want, got, opts...); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func text(content string) blocks.TextBlock {
	return blocks.TextBlock{Content: content}
}

func toolUse(id, name string, params map[string]any) blocks.ToolUseBlock {
	return blocks.ToolUseBlock{ID: id, Name: name, Params: params}
}

// requireMonotonic checks that next only extends prev. Blocks are never
// removed, frozen blocks never change and open blocks only grow. A text
// block that froze in between may instead lose a trailing tag fragment.
func requireMonotonic(t *testing.T, prev, next []blocks.ContentBlock, at int) {
	t.Helper()
	require.GreaterOrEqual(t, len(next), len(prev), "block disappeared at byte %d", at)
	for j, old := range prev {
		cur := next[j]
		require.Equal(t, old.Type(), cur.Type(), "block %d changed type at byte %d", j, at)
		if !old.IsPartial() {
			if diff := cmp.Diff(old, cur); diff != "" {
				t.Fatalf("frozen block %d changed at byte %d:\n%s", j, at, diff)
			}
			continue
		}

		switch o := old.(type) {
		case blocks.TextBlock:
			c := cur.(blocks.TextBlock)
			if !c.Partial && strings.HasPrefix(o.Content, c.Content) {
				continue
			}
			require.True(t, strings.HasPrefix(c.Content, o.Content),
				"text block %d shrank at byte %d: %q -> %q", j, at, o.Content, c.Content)
		case blocks.ToolUseBlock:
			c := cur.(blocks.ToolUseBlock)
			require.Equal(t, o.ID, c.ID, "block %d at byte %d", j, at)
			require.Equal(t, o.Name, c.Name, "block %d at byte %d", j, at)
			for k, v := range o.Params {
				nv, ok := c.Params[k]
				require.True(t, ok, "param %q of block %d vanished at byte %d", k, j, at)
				require.True(t, strings.HasPrefix(nv.(string), v.(string)),
					"param %q of block %d shrank at byte %d: %q -> %q", k, j, at, v, nv)
			}
		}
	}
}
