package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseSSELine extracts the payload of a server-sent-events "data:" line.
// done is true for the terminal "[DONE]" frame; ok is false for lines that
// carry no payload (comments, event names, blank keep-alives).
func ParseSSELine(line string) (data string, done bool, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false, false
	}
	data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return "", true, true
	}
	return data, false, data != ""
}

// DecodeStreamChunk decodes one chat-completions streaming payload into
// text content and tool-call deltas. Only the first choice is read.
func DecodeStreamChunk(data []byte) (StreamChunk, error) {
	if !gjson.ValidBytes(data) {
		return StreamChunk{}, ErrMalformedChunk
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return StreamChunk{}, ErrMalformedChunk
	}

	if errObj := root.Get("error"); errObj.IsObject() {
		return StreamChunk{}, &APIError{
			Message: errObj.Get("message").String(),
			Type:    errObj.Get("type").String(),
			Code:    errObj.Get("code").String(),
		}
	}

	var chunk StreamChunk
	if usage := root.Get("usage"); usage.IsObject() {
		chunk.Usage = &Usage{
			InputTokens:  int(usage.Get("prompt_tokens").Int()),
			OutputTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:  int(usage.Get("total_tokens").Int()),
		}
	}

	choice := root.Get("choices.0")
	if !choice.Exists() {
		return chunk, nil
	}

	delta := choice.Get("delta")
	chunk.Content = delta.Get("content").String()

	// Z.AI and DeepSeek use reasoning_content, some proxies use thinking.
	chunk.ReasoningContent = delta.Get("reasoning_content").String()
	if chunk.ReasoningContent == "" {
		chunk.ReasoningContent = delta.Get("thinking").String()
	}

	if reason := choice.Get("finish_reason"); reason.Type == gjson.String {
		chunk.FinishReason = reason.String()
	}

	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		chunk.ToolCalls = append(chunk.ToolCalls, decodeCallDelta(tc))
		return true
	})

	return chunk, nil
}

func decodeCallDelta(tc gjson.Result) CallDelta {
	cd := CallDelta{
		ID:   tc.Get("id").String(),
		Name: tc.Get("function.name").String(),
	}
	if idx := tc.Get("index"); idx.Type == gjson.Number {
		i := int(idx.Int())
		cd.Index = &i
	}

	// Some providers send the arguments as an object instead of an encoded string.
	args := tc.Get("function.arguments")
	switch args.Type {
	case gjson.String:
		cd.Arguments = args.String()
	case gjson.JSON:
		cd.Arguments = args.Raw
	}
	return cd
}
