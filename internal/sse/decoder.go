// Package sse decodes OpenAI-style server-sent-event completion streams.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"strings"

	"github.com/wenjia28/nanochat/internal/domain"
)

// doneSentinel marks the end of an upstream stream.
const doneSentinel = "[DONE]"

// maxFrameSize bounds a single SSE line; frames carrying inline images can
// get large.
const maxFrameSize = 1024 * 1024

// streamChunk mirrors the wire shape of one completion frame.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
}

// EmitFunc receives the cumulative snapshot after each frame that
// contributed text. Returning an error aborts decoding.
type EmitFunc func(domain.Snapshot) error

// Decode reads SSE frames from r and accumulates the content and
// reasoning deltas they carry. Every frame that adds text triggers emit
// with the running totals; the final totals are returned at end of input.
// Malformed frames are skipped, a clean EOF is not an error.
func Decode(r io.Reader, emit EmitFunc) (domain.Snapshot, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var content, reasoning strings.Builder
	var data []string

	snapshot := func() domain.Snapshot {
		return domain.Snapshot{Content: content.String(), Reasoning: reasoning.String()}
	}

	// flush dispatches the frame accumulated since the last blank line.
	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		if payload == doneSentinel {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			log.Printf("WARN: skipping malformed stream frame: %v", err)
			return nil
		}
		if len(chunk.Choices) == 0 {
			return nil
		}

		delta := chunk.Choices[0].Delta
		if delta.Content == "" && delta.ReasoningContent == "" {
			return nil
		}
		content.WriteString(delta.Content)
		reasoning.WriteString(delta.ReasoningContent)
		return emit(snapshot())
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Blank line terminates the current frame.
		if line == "" {
			if err := flush(); err != nil {
				return snapshot(), err
			}
			continue
		}

		// Comment line.
		if strings.HasPrefix(line, ":") {
			continue
		}

		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
		// event:, id: and retry: fields carry nothing we need.
	}

	if err := scanner.Err(); err != nil {
		return snapshot(), err
	}

	// A final frame may arrive without a trailing blank line.
	if err := flush(); err != nil {
		return snapshot(), err
	}

	return snapshot(), nil
}
