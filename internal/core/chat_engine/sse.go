package chat_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/models"
)

// Downstream wire format, one JSON record per "data:" line:
//
//	data: {"choices":[{"delta":{"content":"..."}}],"citations":[...]}
//	data: {"error":{"message":"..."}}
//	data: [DONE]
type sseChunk struct {
	Choices   []sseChoice       `json:"choices"`
	Citations []models.Citation `json:"citations,omitempty"`
}

type sseChoice struct {
	Delta sseDelta `json:"delta"`
}

type sseDelta struct {
	Content string `json:"content"`
}

type sseError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// SSEWriter writes the downstream event stream, flushing after every event.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter sets the event-stream headers on w. It fails when w cannot flush.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) event(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEWriter) WriteFragment(f Fragment) error {
	b, err := json.Marshal(sseChunk{
		Choices:   []sseChoice{{Delta: sseDelta{Content: f.Content}}},
		Citations: f.Citations,
	})
	if err != nil {
		return err
	}
	return s.event(b)
}

// WriteError sends err's user-facing message; internal detail stays in logs.
func (s *SSEWriter) WriteError(err error) error {
	var e sseError
	e.Error.Message = apperr.MessageOf(err)
	e.Error.Code = string(apperr.CodeOf(err))
	b, mErr := json.Marshal(e)
	if mErr != nil {
		return mErr
	}
	return s.event(b)
}

func (s *SSEWriter) WriteDone() error {
	return s.event([]byte("[DONE]"))
}

// Relay writes first and then every fragment from rest until the answer ends,
// always finishing with [DONE]. It stops early without error when ctx is done,
// which is how a client disconnect shows up.
func (s *SSEWriter) Relay(ctx context.Context, first Fragment, rest <-chan Fragment) error {
	f, ok := first, true
	for ok {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.writeOne(f); err != nil {
			return err
		}
		if f.Done {
			return s.WriteDone()
		}
		select {
		case <-ctx.Done():
			return nil
		case f, ok = <-rest:
		}
	}
	// upstream ended without a Done fragment
	return s.WriteDone()
}

func (s *SSEWriter) writeOne(f Fragment) error {
	if f.Err != nil {
		if f.Content != "" || len(f.Citations) > 0 {
			if err := s.WriteFragment(Fragment{Content: f.Content, Citations: f.Citations}); err != nil {
				return err
			}
		}
		return s.WriteError(f.Err)
	}
	if f.Content == "" && len(f.Citations) == 0 {
		return nil
	}
	return s.WriteFragment(f)
}
