package chat_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/markdave123-py/spacechat/internal/apperr"
	"github.com/markdave123-py/spacechat/internal/core"
	"github.com/markdave123-py/spacechat/internal/models"
)

const (
	// MaxHistoryTurns bounds the earlier turns sent along with a new message.
	MaxHistoryTurns = 10
	// MaxMessageRunes bounds one visitor message.
	MaxMessageRunes = 4000

	fallbackChunks = 5
	readBufSize    = 4096
)

// ResponderConfig selects the generation path. With Retrieval set, answers
// come from the space's remote index; otherwise from Generator over the
// space's stored chunks, ranked by Embedder when one is set.
type ResponderConfig struct {
	Retrieval core.RetrievalGenerator
	Generator core.LLMProvider
	Embedder  core.EmbeddingProvider
	// Timeout bounds the wait for the first answer text. Once text flows the
	// answer runs until it ends or is closed.
	Timeout time.Duration
}

type Responder struct {
	db        core.DbClient
	retrieval core.RetrievalGenerator
	generator core.LLMProvider
	embedder  core.EmbeddingProvider
	timeout   time.Duration
}

func NewResponder(db core.DbClient, cfg ResponderConfig) *Responder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Responder{
		db:        db,
		retrieval: cfg.Retrieval,
		generator: cfg.Generator,
		embedder:  cfg.Embedder,
		timeout:   cfg.Timeout,
	}
}

// Answer is a streamed reply. Fragments arrive in upstream order and the
// channel closes after the Done fragment or when the answer is closed.
type Answer struct {
	Fragments <-chan Fragment
	cancel    context.CancelFunc
}

// Close stops the upstream call if it is still running.
func (a *Answer) Close() {
	a.cancel()
}

// Respond starts answering message in space. Failures before the upstream
// stream opens are returned as *apperr.AppError; later ones arrive as the
// final fragment's Err.
func (r *Responder) Respond(ctx context.Context, space *models.Space, message string, history []models.ChatTurn) (*Answer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.NewInvalidRequest("message is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageRunes {
		return nil, apperr.NewInvalidRequest(fmt.Sprintf("message is longer than %d characters", MaxMessageRunes))
	}

	turns := BoundTurns(history, message)
	if r.retrieval != nil {
		return r.respondRemote(ctx, space, turns)
	}
	return r.respondFromChunks(ctx, space, message, turns)
}

// errNoFirstText marks an upstream call cancelled because no answer text
// arrived within the responder timeout.
var errNoFirstText = errors.New("no answer text before timeout")

// answerContexts returns the context fragments are delivered on, cancelled by
// Answer.Close, and the upstream context, which is additionally cancelled
// with errNoFirstText when the returned timer fires. Stop the timer once the
// first text is out.
func (r *Responder) answerContexts(ctx context.Context) (deliver context.Context, closeAnswer context.CancelFunc, upstream context.Context, stopUpstream context.CancelCauseFunc, firstText *time.Timer) {
	deliver, closeAnswer = context.WithCancel(ctx)
	upstream, stopUpstream = context.WithCancelCause(deliver)
	firstText = time.AfterFunc(r.timeout, func() { stopUpstream(errNoFirstText) })
	return deliver, closeAnswer, upstream, stopUpstream, firstText
}

func (r *Responder) respondRemote(ctx context.Context, space *models.Space, turns []models.ChatTurn) (*Answer, error) {
	if !space.HasIndex() {
		return nil, apperr.NewNoContentIndexed()
	}

	deliver, closeAnswer, upstream, stopUpstream, firstText := r.answerContexts(ctx)
	body, err := r.retrieval.StreamResponse(upstream, core.RetrievalRequest{
		Instructions: BuildInstructions(space),
		Turns:        turns,
		IndexHandle:  *space.IndexHandle,
	})
	if err != nil {
		firstText.Stop()
		appErr := chatError(upstream, err)
		stopUpstream(nil)
		closeAnswer()
		return nil, appErr
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer closeAnswer()
		defer stopUpstream(nil)
		defer firstText.Stop()
		defer body.Close()
		relay(deliver, upstream, body, out, firstText)
	}()
	return &Answer{Fragments: out, cancel: closeAnswer}, nil
}

// relay reads the upstream body through a Transcoder until the answer is done.
// Fragments are sent on deliver; read failures are classified against upstream.
func relay(deliver, upstream context.Context, body io.Reader, out chan<- Fragment, firstText *time.Timer) {
	var tr Transcoder
	buf := make([]byte, readBufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, f := range tr.Feed(buf[:n]) {
				if f.Content != "" {
					firstText.Stop()
				}
				if !send(deliver, out, f) || f.Done {
					return
				}
			}
		}
		if errors.Is(err, io.EOF) {
			for _, f := range tr.Flush() {
				if !send(deliver, out, f) {
					return
				}
			}
			return
		}
		if err != nil {
			send(deliver, out, Fragment{Done: true, Err: chatError(upstream, err)})
			return
		}
	}
}

func (r *Responder) respondFromChunks(ctx context.Context, space *models.Space, message string, turns []models.ChatTurn) (*Answer, error) {
	if r.generator == nil {
		return nil, apperr.NewServiceUnavailable(errors.New("no generation provider configured"))
	}

	n, err := r.db.CountSpaceChunks(ctx, space.ID)
	if err != nil {
		return nil, apperr.NewInternal(fmt.Errorf("count chunks: %w", err))
	}
	if n == 0 {
		return nil, apperr.NewNoContentIndexed()
	}

	deliver, closeAnswer, upstream, stopUpstream, firstText := r.answerContexts(ctx)
	abort := func() {
		firstText.Stop()
		stopUpstream(nil)
		closeAnswer()
	}

	var queryVec []float32
	if r.embedder != nil {
		vecs, err := r.embedder.EmbedTexts(upstream, []string{message})
		if err != nil || len(vecs) == 0 {
			log.Printf("Responder: embedding question for space %s failed, using text search: %v", space.ID, err)
		} else {
			queryVec = vecs[0]
		}
	}

	chunks, err := r.db.SearchSpaceChunks(upstream, space.ID, message, queryVec, fallbackChunks)
	if err != nil {
		appErr := apperr.NewInternal(fmt.Errorf("search chunks: %w", err))
		if errors.Is(context.Cause(upstream), errNoFirstText) {
			appErr = chatError(upstream, err)
		}
		abort()
		return nil, appErr
	}

	stream, err := r.generator.GenerateStream(upstream, withExcerpts(BuildInstructions(space), chunks), turns)
	if err != nil {
		appErr := chatError(upstream, err)
		abort()
		return nil, appErr
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer closeAnswer()
		defer stopUpstream(nil)
		defer firstText.Stop()
		defer stream.Close()
		for {
			text, err := stream.Next()
			if errors.Is(err, io.EOF) {
				send(deliver, out, Fragment{Done: true})
				return
			}
			if err != nil {
				send(deliver, out, Fragment{Done: true, Err: chatError(upstream, err)})
				return
			}
			if text == "" {
				continue
			}
			firstText.Stop()
			if !send(deliver, out, Fragment{Content: text}) {
				return
			}
		}
	}()
	return &Answer{Fragments: out, cancel: closeAnswer}, nil
}

func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// chatError classifies err; a timeout counts as an upstream failure.
func chatError(ctx context.Context, err error) *apperr.AppError {
	if errors.Is(context.Cause(ctx), errNoFirstText) {
		return apperr.NewChatFailed(fmt.Errorf("%w: %v", errNoFirstText, err))
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.NewChatFailed(err)
	}
	return apperr.ClassifyMessage(err)
}

// BoundTurns keeps the last MaxHistoryTurns usable history turns, oldest
// first, and appends message as the new user turn.
func BoundTurns(history []models.ChatTurn, message string) []models.ChatTurn {
	var kept []models.ChatTurn
	for _, t := range history {
		if t.Role != models.RoleUser && t.Role != models.RoleAssistant {
			continue
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		kept = append(kept, models.ChatTurn{Role: t.Role, Content: t.Content})
	}
	if len(kept) > MaxHistoryTurns {
		kept = kept[len(kept)-MaxHistoryTurns:]
	}
	return append(kept, models.ChatTurn{Role: models.RoleUser, Content: message})
}
