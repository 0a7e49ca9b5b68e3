// Package llm defines the streaming text generation boundary.
package llm

import "context"

// Generator produces an answer for a fully rendered prompt as a stream of text fragments.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Stream, error)
}

// Stream yields generated fragments in order. Recv returns io.EOF once the answer is complete.
type Stream interface {
	Recv() (string, error)
	Close() error
}
