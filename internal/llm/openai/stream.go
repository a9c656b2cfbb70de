package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ChatStream reads an in-flight streaming chat/completions response.
// Recv pulls one chunk at a time; the underlying stream is consumed
// exactly once and is not restartable.
type ChatStream struct {
	// ctx cancels reads when the caller aborts the turn.
	ctx context.Context
	// body is the open HTTP response body.
	body io.ReadCloser
	// reader buffers SSE lines from the body.
	reader *bufio.Reader
	// done is set once the terminal [DONE] marker or EOF is seen.
	done bool
}

// ChatCompletionsStream executes a streaming chat/completions request and
// returns a ChatStream for pulling chunks. Callers must Close the stream.
func (c *Client) ChatCompletionsStream(ctx context.Context, req *ChatRequest) (*ChatStream, error) {
	if req == nil {
		return nil, errors.New("chat request is required")
	}

	req.Stream = true
	if req.StreamOptions == nil {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read stream error body: %w", readErr)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return &ChatStream{
		ctx:    ctx,
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// Recv returns the next stream chunk. It returns io.EOF after the terminal
// [DONE] marker or when the provider closes the stream.
func (s *ChatStream) Recv() (StreamResponse, error) {
	if s.done {
		return StreamResponse{}, io.EOF
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.done = true
			return StreamResponse{}, err
		}
		data, err := readSSEEvent(s.reader)
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return StreamResponse{}, io.EOF
			}
			return StreamResponse{}, fmt.Errorf("read stream event: %w", err)
		}
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return StreamResponse{}, io.EOF
		}
		var chunk StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.done = true
			return StreamResponse{}, fmt.Errorf("parse stream response: %w", err)
		}
		return chunk, nil
	}
}

// Close releases the underlying response body.
func (s *ChatStream) Close() error {
	s.done = true
	return s.body.Close()
}

// readSSEEvent reads a single SSE event payload.
func readSSEEvent(reader *bufio.Reader) (string, error) {
	var builder strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if builder.Len() == 0 {
				if errors.Is(err, io.EOF) {
					return "", io.EOF
				}
				continue
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			builder.WriteString(payload)
			builder.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			if builder.Len() == 0 {
				return "", io.EOF
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
	}
}
