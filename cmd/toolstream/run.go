package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tiancaiamao/toolstream/pkg/blocks"
	"github.com/tiancaiamao/toolstream/pkg/config"
	"github.com/tiancaiamao/toolstream/pkg/llm"
	"github.com/tiancaiamao/toolstream/pkg/logger"
	"github.com/tiancaiamao/toolstream/pkg/parser"
)

type inputMode int

const (
	modeText inputMode = iota
	modeSSE
)

// maxSSELine bounds a single "data:" line.
const maxSSELine = 4 << 20

type runOptions struct {
	Mode       inputMode
	ConfigPath string
	ChunkSize  int
	Snapshots  bool
	Debug      bool
}

// outputLine is one JSON Lines record written to the output.
type outputLine struct {
	Type         string                `json:"type"`
	Blocks       []blocks.ContentBlock `json:"blocks,omitempty"`
	Stats        *parser.Stats         `json:"stats,omitempty"`
	Usage        *llm.Usage            `json:"usage,omitempty"`
	FinishReason string                `json:"finishReason,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// turnResult carries what the SSE stream reports besides content.
type turnResult struct {
	usage        *llm.Usage
	finishReason string
}

// run parses one assistant turn from input and writes JSON Lines to output:
// optional "snapshot" records, then one "result" or "error" record.
func run(opts runOptions, input io.Reader, output io.Writer) error {
	configPath := opts.ConfigPath
	if configPath == "" {
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		configPath = path
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = config.DefaultLogConfig()
	}

	log, err := cfg.Log.CreateLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()
	if opts.Debug && log.GetLevel() != logger.DEBUG {
		log.SetLevel(logger.DEBUG)
	}

	p, err := parser.FromConfig(cfg.Parser, parser.WithLogger(log.Slog()))
	if err != nil {
		return err
	}

	snapshot := func(b []blocks.ContentBlock) error {
		if !opts.Snapshots {
			return nil
		}
		return writeJSONLine(output, outputLine{Type: "snapshot", Blocks: b})
	}

	var res turnResult
	switch opts.Mode {
	case modeSSE:
		res, err = feedSSE(p, input, log.Slog(), snapshot)
	default:
		err = feedText(p, input, opts.ChunkSize, snapshot)
	}
	if err != nil {
		if werr := writeJSONLine(output, outputLine{Type: "error", Error: err.Error()}); werr != nil {
			slog.Warn("Failed to write error line", "error", werr)
		}
		return err
	}

	final := p.Finalize()
	stats := p.Stats()
	log.Debug("Turn parsed", "stats", stats.String())
	return writeJSONLine(output, outputLine{
		Type:         "result",
		Blocks:       final,
		Stats:        &stats,
		Usage:        res.usage,
		FinishReason: res.finishReason,
	})
}

func feedText(p *parser.Parser, input io.Reader, chunkSize int, snapshot func([]blocks.ContentBlock) error) error {
	if chunkSize <= 0 {
		chunkSize = 64
	}
	reader := bufio.NewReader(input)
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			b, perr := p.ProcessChunk(string(buf[:n]))
			if perr != nil {
				return perr
			}
			if serr := snapshot(b); serr != nil {
				return serr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
}

func feedSSE(p *parser.Parser, input io.Reader, log *slog.Logger, snapshot func([]blocks.ContentBlock) error) (turnResult, error) {
	var res turnResult
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		data, done, ok := llm.ParseSSELine(scanner.Text())
		if done {
			break
		}
		if !ok {
			continue
		}

		chunk, err := llm.DecodeStreamChunk([]byte(data))
		if err != nil {
			var apiErr *llm.APIError
			if errors.As(err, &apiErr) {
				return res, err
			}
			log.Warn("Skipping malformed stream chunk", "error", err, "bytes", len(data))
			continue
		}
		if chunk.ReasoningContent != "" {
			log.Debug("Reasoning content ignored", "bytes", len(chunk.ReasoningContent))
		}
		if chunk.Usage != nil {
			res.usage = chunk.Usage
		}
		if chunk.FinishReason != "" {
			res.finishReason = chunk.FinishReason
		}
		if chunk.Content == "" && len(chunk.ToolCalls) == 0 {
			continue
		}

		b, err := p.ProcessStreamChunk(chunk)
		if err != nil {
			return res, err
		}
		if err := snapshot(b); err != nil {
			return res, err
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("failed to read stream: %w", err)
	}
	return res, nil
}

func writeJSONLine(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
