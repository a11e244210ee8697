package parser

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/tiancaiamao/toolstream/pkg/config"
)

// AllowList holds the tool names and per-tool parameter names the tag
// scanner and the delta accumulator accept.
//
// Iteration follows insertion order. When the buffer tail could match more
// than one candidate tag, the first one in this order wins.
type AllowList struct {
	tools      *orderedmap.OrderedMap[string, *toolTags]
	maxOpenTag int
}

type toolTags struct {
	name   string
	open   string
	close  string
	params *orderedmap.OrderedMap[string, paramTags]
}

type paramTags struct {
	name  string
	open  string
	close string
}

// NewAllowList creates an empty allow-list.
func NewAllowList() *AllowList {
	return &AllowList{tools: orderedmap.New[string, *toolTags]()}
}

// AllowListFromConfig builds an allow-list from configured tools, keeping
// their order.
func AllowListFromConfig(tools []config.ToolConfig) *AllowList {
	a := NewAllowList()
	for _, tool := range tools {
		a.Add(tool.Name, tool.Params...)
	}
	return a
}

// Add registers a tool and its parameters. Adding an existing tool appends
// any new parameters to it. Empty names are ignored.
func (a *AllowList) Add(tool string, params ...string) *AllowList {
	if tool == "" {
		return a
	}
	entry, ok := a.tools.Get(tool)
	if !ok {
		entry = &toolTags{
			name:   tool,
			open:   "<" + tool + ">",
			close:  "</" + tool + ">",
			params: orderedmap.New[string, paramTags](),
		}
		a.tools.Set(tool, entry)
		a.maxOpenTag = max(a.maxOpenTag, len(entry.open))
	}
	for _, p := range params {
		if p == "" {
			continue
		}
		if _, exists := entry.params.Get(p); exists {
			continue
		}
		entry.params.Set(p, paramTags{name: p, open: "<" + p + ">", close: "</" + p + ">"})
	}
	return a
}

// HasTool reports whether name is an allowed tool.
func (a *AllowList) HasTool(name string) bool {
	_, ok := a.tools.Get(name)
	return ok
}

// HasParam reports whether param is allowed for tool.
func (a *AllowList) HasParam(tool, param string) bool {
	entry, ok := a.tools.Get(tool)
	if !ok {
		return false
	}
	_, ok = entry.params.Get(param)
	return ok
}

// Tools returns tool names in precedence order.
func (a *AllowList) Tools() []string {
	names := make([]string, 0, a.tools.Len())
	for pair := a.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Params returns the parameter names of tool in precedence order.
func (a *AllowList) Params(tool string) []string {
	entry, ok := a.tools.Get(tool)
	if !ok {
		return nil
	}
	names := make([]string, 0, entry.params.Len())
	for pair := entry.params.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// matchToolOpen returns the first tool whose opening tag ends tail.
func (a *AllowList) matchToolOpen(tail string) *toolTags {
	for pair := a.tools.Oldest(); pair != nil; pair = pair.Next() {
		if strings.HasSuffix(tail, pair.Value.open) {
			return pair.Value
		}
	}
	return nil
}

// isToolOpenPrefix reports whether s could still grow into an opening tag.
func (a *AllowList) isToolOpenPrefix(s string) bool {
	if len(s) > a.maxOpenTag {
		return false
	}
	for pair := a.tools.Oldest(); pair != nil; pair = pair.Next() {
		if strings.HasPrefix(pair.Value.open, s) {
			return true
		}
	}
	return false
}

func (a *AllowList) tool(name string) (*toolTags, bool) {
	return a.tools.Get(name)
}

// matchParamOpen returns the first parameter of t whose opening tag ends tail.
func (t *toolTags) matchParamOpen(tail string) (paramTags, bool) {
	for pair := t.params.Oldest(); pair != nil; pair = pair.Next() {
		if strings.HasSuffix(tail, pair.Value.open) {
			return pair.Value, true
		}
	}
	return paramTags{}, false
}

func (t *toolTags) param(name string) (paramTags, bool) {
	return t.params.Get(name)
}
