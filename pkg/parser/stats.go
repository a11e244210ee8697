package parser

import "fmt"

// Stats counts what the parser has seen since creation or the last Reset.
type Stats struct {
	Chunks         int64 // chunks accepted by ProcessChunk
	Bytes          int64 // bytes accepted by ProcessChunk
	Overflows      int64 // chunks rejected by the buffer cap
	TextBlocks     int64 // text blocks started
	ToolUses       int64 // inline tool uses opened
	ParamOverflows int64 // parameters discarded for exceeding the cap
	Deltas         int64 // call deltas received
	DeltasDropped  int64 // deltas that could not be applied
	CallsEmitted   int64 // tool uses emitted from call deltas
	CallsDiscarded int64 // calls discarded for non-object or unparseable arguments
}

func (s Stats) String() string {
	return fmt.Sprintf("chunks=%d bytes=%d text=%d tools=%d calls=%d dropped=%d",
		s.Chunks, s.Bytes, s.TextBlocks, s.ToolUses, s.CallsEmitted, s.DeltasDropped)
}
