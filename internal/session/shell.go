package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"finqa/internal/domain"
	"finqa/internal/service"
)

// Retriever looks up contexts for one ticker.
type Retriever interface {
	FindTopContexts(ctx context.Context, ticker, question string, topK int, threshold float64) ([]domain.Context, error)
}

// Shell runs chat turns against a retriever and an answerer.
type Shell struct {
	tickers   *Tickers
	retriever Retriever
	answerer  *service.Answerer
	topK      int
	threshold float64
	log       *zap.Logger
}

func NewShell(tickers *Tickers, retriever Retriever, answerer *service.Answerer, topK int, threshold float64, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{tickers: tickers, retriever: retriever, answerer: answerer, topK: topK, threshold: threshold, log: log}
}

// Tickers returns the symbol set used for detection.
func (sh *Shell) Tickers() *Tickers { return sh.tickers }

// Begin records the user message, retrieves contexts for every ticker named in the input
// (or the session default when none is) and starts the answer stream. A retrieval error
// aborts the turn; the user message stays in the transcript.
func (sh *Shell) Begin(ctx context.Context, s *Session, input string) (*Turn, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	s.append(domain.Message{Role: domain.RoleUser, Content: input})

	t := &Turn{session: s, Question: input}
	t.Tickers = sh.tickers.Detect(input)
	if len(t.Tickers) == 0 {
		t.Tickers = []string{s.DefaultTicker()}
		t.UsedDefault = true
	}
	sh.log.Info("turn started", zap.Strings("tickers", t.Tickers), zap.Bool("default", t.UsedDefault))

	for _, ticker := range t.Tickers {
		found, err := sh.retriever.FindTopContexts(ctx, ticker, input, sh.topK, sh.threshold)
		if err != nil {
			return nil, fmt.Errorf("retrieve %s: %w", ticker, err)
		}
		t.Contexts = append(t.Contexts, found...)
	}
	t.stream = sh.answerer.GetAnswerStream(ctx, input, t.Contexts)
	return t, nil
}

// Turn is one in-flight question. Consume it with Recv until io.EOF.
type Turn struct {
	Question    string
	Tickers     []string
	UsedDefault bool
	Contexts    []domain.Context

	session  *Session
	stream   *service.AnswerStream
	answer   strings.Builder
	finished bool
}

// Recv returns the next answer fragment. At io.EOF the assistant message, with the
// accumulated answer and its contexts, is appended to the transcript exactly once.
func (t *Turn) Recv() (string, error) {
	f, err := t.stream.Recv()
	if errors.Is(err, io.EOF) {
		t.finish()
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	t.answer.WriteString(f)
	return f, nil
}

// Answer returns the text received so far.
func (t *Turn) Answer() string { return t.answer.String() }

// Close stops the answer stream and records whatever was received.
func (t *Turn) Close() error {
	err := t.stream.Close()
	t.finish()
	return err
}

func (t *Turn) finish() {
	if t.finished {
		return
	}
	t.finished = true
	t.session.append(domain.Message{Role: domain.RoleAssistant, Content: t.answer.String(), Contexts: t.Contexts})
}
