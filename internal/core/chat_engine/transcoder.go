package chat_engine

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/models"
)

// Fragment is one downstream event: a piece of answer text, the citations
// that arrived before it, or the end of the answer. Err is set only on the
// final fragment of a failed answer.
type Fragment struct {
	Content   string
	Citations []models.Citation
	Done      bool
	Err       error
}

// Transcoder turns the upstream event stream into Fragments as bytes arrive.
// It understands Responses API events and, for compatible providers,
// chat-completions chunks. Lines split across reads are reassembled; lines
// that are not valid events are skipped.
type Transcoder struct {
	buf     []byte
	pending []models.Citation
	done    bool
}

type upstreamEvent struct {
	Type    string `json:"type"`
	Delta   string `json:"delta"`
	Code    string `json:"code"`
	Message string `json:"message"`

	Annotation *struct {
		Type     string `json:"type"`
		FileID   string `json:"file_id"`
		Filename string `json:"filename"`
		Index    int    `json:"index"`
	} `json:"annotation"`

	Response *struct {
		Error *upstreamError `json:"error"`
	} `json:"response"`

	Error *upstreamError `json:"error"`

	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type upstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Feed consumes the next read from upstream and returns the fragments it
// completed, in order. After a Done fragment further input is ignored.
func (t *Transcoder) Feed(p []byte) []Fragment {
	if t.done {
		return nil
	}
	t.buf = append(t.buf, p...)

	var out []Fragment
	for !t.done {
		i := bytes.IndexByte(t.buf, '\n')
		if i < 0 {
			break
		}
		line := t.buf[:i]
		t.buf = t.buf[i+1:]
		if f, ok := t.line(line); ok {
			out = append(out, f)
		}
	}
	if len(t.buf) == 0 {
		t.buf = nil
	}
	return out
}

// Flush ends the stream: a trailing line without newline is processed, and if
// no completion event was seen a final fragment carries any pending citations.
func (t *Transcoder) Flush() []Fragment {
	if t.done {
		return nil
	}
	var out []Fragment
	if len(t.buf) > 0 {
		line := t.buf
		t.buf = nil
		if f, ok := t.line(line); ok {
			out = append(out, f)
		}
	}
	if !t.done {
		out = append(out, t.finish())
	}
	return out
}

func (t *Transcoder) line(line []byte) (Fragment, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte("data:")) {
		return Fragment{}, false // event:, id:, comments, blank separators
	}
	payload := bytes.TrimSpace(line[len("data:"):])
	if len(payload) == 0 {
		return Fragment{}, false
	}
	if string(payload) == "[DONE]" {
		return t.finish(), true
	}

	var ev upstreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Fragment{}, false
	}

	switch ev.Type {
	case "response.output_text.delta":
		return t.text(ev.Delta)

	case "response.output_text.annotation.added":
		if a := ev.Annotation; a != nil && a.Type == "file_citation" {
			t.pending = append(t.pending, models.Citation{FileID: a.FileID, Filename: a.Filename, Index: a.Index})
		}
		return Fragment{}, false

	case "response.completed":
		return t.finish(), true

	case "response.failed", "response.incomplete":
		var ue *upstreamError
		if ev.Response != nil {
			ue = ev.Response.Error
		}
		if ue == nil {
			ue = &upstreamError{Message: ev.Type}
		}
		return t.fail(ue), true

	case "error":
		ue := &upstreamError{Code: ev.Code, Message: ev.Message}
		if ev.Error != nil {
			ue = ev.Error
		}
		return t.fail(ue), true

	case "":
		if ev.Error != nil {
			return t.fail(ev.Error), true
		}
		if len(ev.Choices) > 0 {
			return t.text(ev.Choices[0].Delta.Content)
		}
	}
	return Fragment{}, false
}

func (t *Transcoder) text(s string) (Fragment, bool) {
	if s == "" {
		return Fragment{}, false
	}
	f := Fragment{Content: s, Citations: t.pending}
	t.pending = nil
	return f, true
}

func (t *Transcoder) finish() Fragment {
	t.done = true
	f := Fragment{Citations: t.pending, Done: true}
	t.pending = nil
	return f
}

// fail ends the stream with an error. Citations already announced ride on
// the error fragment so they are not lost.
func (t *Transcoder) fail(ue *upstreamError) Fragment {
	t.done = true
	f := Fragment{Citations: t.pending, Done: true, Err: classifyUpstream(ue)}
	t.pending = nil
	return f
}

// classifyUpstream maps an in-stream error event onto the chat taxonomy.
func classifyUpstream(ue *upstreamError) *apperr.AppError {
	cause := errors.New(ue.Message)
	if ue.Code != "" {
		cause = errors.New(ue.Code + ": " + ue.Message)
	}
	switch ue.Code {
	case "rate_limit_exceeded":
		return apperr.NewRateLimited(cause)
	case "insufficient_quota", "invalid_api_key":
		return apperr.NewServiceUnavailable(cause)
	default:
		return apperr.NewChatFailed(cause)
	}
}
