package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"finqa/internal/domain"
	"finqa/internal/llm"
)

// Answerer turns a question and its retrieved contexts into a streamed answer.
type Answerer struct {
	generator llm.Generator
	log       *zap.Logger
}

func NewAnswerer(generator llm.Generator, log *zap.Logger) *Answerer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Answerer{generator: generator, log: log}
}

// GetAnswerStream returns the answer as a stream of fragments. Without contexts the
// stream holds only UnavailableMessage and the model is never called. Generation errors
// become a single error fragment, so Recv only ever fails with io.EOF.
func (a *Answerer) GetAnswerStream(ctx context.Context, question string, contexts []domain.Context) *AnswerStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &AnswerStream{ctx: ctx, cancel: cancel, log: a.log}
	if len(contexts) == 0 {
		s.queue = []string{UnavailableMessage}
		return s
	}
	prompt := BuildPrompt(question, contexts)
	s.start = func(ctx context.Context) (llm.Stream, error) {
		return a.generator.Generate(ctx, prompt)
	}
	return s
}

// ErrorFragment formats a generation failure as answer text.
func ErrorFragment(err error) string {
	return fmt.Sprintf("Error calling the language model: %v", err)
}

// AnswerStream is a pull-based answer. It is not safe for concurrent use.
type AnswerStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	start func(context.Context) (llm.Stream, error)
	inner llm.Stream
	queue []string
	done  bool
}

// Recv returns the next fragment, or io.EOF when the answer is complete.
func (s *AnswerStream) Recv() (string, error) {
	if len(s.queue) > 0 {
		f := s.queue[0]
		s.queue = s.queue[1:]
		return f, nil
	}
	if s.done {
		return "", io.EOF
	}
	if s.start != nil {
		start := s.start
		s.start = nil
		inner, err := start(s.ctx)
		if err != nil {
			return s.fail(err), nil
		}
		s.inner = inner
	}
	if s.inner == nil {
		s.finish()
		return "", io.EOF
	}

	f, err := s.inner.Recv()
	if errors.Is(err, io.EOF) {
		s.finish()
		return "", io.EOF
	}
	if err != nil {
		return s.fail(err), nil
	}
	return f, nil
}

// Close cancels an in-flight generation. Later Recv calls return io.EOF.
func (s *AnswerStream) Close() error {
	s.queue = nil
	s.start = nil
	s.finish()
	return nil
}

func (s *AnswerStream) fail(err error) string {
	s.log.Warn("generation failed", zap.Error(err))
	s.finish()
	return ErrorFragment(err)
}

func (s *AnswerStream) finish() {
	s.done = true
	if s.inner != nil {
		_ = s.inner.Close()
		s.inner = nil
	}
	s.cancel()
}
