package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

// StreamChunk is one decoded "data:" record of an event stream.
type StreamChunk struct {
	ID    string
	Delta string
	Err   error

	raw *wireResponse
}

// StreamSSE decodes an event stream. The channel is closed after the
// [DONE] sentinel, at end of input, or when ctx is cancelled. Records that
// are not valid JSON are skipped.
func StreamSSE(ctx context.Context, body io.ReadCloser, logger *zap.Logger) <-chan StreamChunk {
	if logger == nil {
		logger = zap.NewNop()
	}
	ch := make(chan StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				select {
				case <-ctx.Done():
				case ch <- StreamChunk{Err: err}:
				}
				return
			}
			eof := err != nil

			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "data:") {
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "[DONE]" {
					return
				}
				if data != "" {
					var chunk wireResponse
					if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
						logger.Debug("skipping malformed stream chunk", zap.Error(jsonErr))
					} else {
						select {
						case <-ctx.Done():
							return
						case ch <- StreamChunk{ID: chunk.ID, Delta: chunk.delta(), raw: &chunk}:
						}
					}
				}
			}
			if eof {
				return
			}
		}
	}()
	return ch
}

// collectStream joins all deltas into one response. The last decoded chunk
// provides id and usage; without any chunk the stream is incomplete.
func collectStream(ch <-chan StreamChunk) (*Response, error) {
	var (
		sb          strings.Builder
		last, usage *wireResponse
	)
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		sb.WriteString(chunk.Delta)
		last = chunk.raw
		if last.Usage != nil || last.InputTokens > 0 || last.OutputTokens > 0 {
			usage = last
		}
	}
	if last == nil {
		return nil, errors.New("no data in event stream")
	}
	resp := last.toResponse(sb.String())
	if usage != nil && usage != last {
		counted := usage.toResponse("")
		resp.InputTokens, resp.OutputTokens = counted.InputTokens, counted.OutputTokens
	}
	return resp, nil
}
