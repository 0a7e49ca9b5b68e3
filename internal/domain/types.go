package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential indicates a required API key is not present in the environment.
	ErrMissingCredential = errors.New("missing credential")

	// ErrCollectionNotFound indicates the vector collection has not been provisioned.
	ErrCollectionNotFound = errors.New("vector collection not found")

	// ErrDimensionMismatch indicates a vector does not match the collection dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidInput indicates malformed input, such as non-text corpus content.
	ErrInvalidInput = errors.New("invalid input")
)

// Record is a single (ticker, context) row of the source corpus.
type Record struct {
	DocumentID int
	Ticker     string
	Context    string
	Source     string
}

// Chunk is a bounded, overlapping slice of a record's context.
type Chunk struct {
	DocumentID int
	Index      int
	Ticker     string
	Text       string
	Source     string
}

// ID returns the deterministic vector entry identifier for the chunk.
func (c Chunk) ID() string {
	return EntryID(c.DocumentID, c.Index)
}

// Metadata converts the chunk into the metadata stored alongside its vector.
func (c Chunk) Metadata() Metadata {
	return Metadata{
		Ticker:     c.Ticker,
		Text:       c.Text,
		Source:     c.Source,
		DocumentID: fmt.Sprintf("doc_%d", c.DocumentID),
		ChunkIndex: c.Index,
	}
}

// EntryID formats the identifier shared by every store: doc_{document}_chunk_{index}.
func EntryID(documentID, chunkIndex int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, chunkIndex)
}

// Metadata is the payload attached to every vector entry.
type Metadata struct {
	Ticker     string `json:"ticker"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// Field returns a metadata value by its stored field name.
func (m Metadata) Field(name string) (any, bool) {
	switch name {
	case "ticker":
		return m.Ticker, true
	case "text":
		return m.Text, true
	case "source":
		return m.Source, true
	case "document_id":
		return m.DocumentID, true
	case "chunk_index":
		return m.ChunkIndex, true
	}
	return nil, false
}

// VectorEntry is one upsert unit for a vector store.
type VectorEntry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Filter restricts a query to entries whose metadata fields equal the given values.
type Filter map[string]any

// Matches reports whether the metadata satisfies every condition of the filter.
func (f Filter) Matches(m Metadata) bool {
	for k, want := range f {
		got, ok := m.Field(k)
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Match is a single similarity search hit.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Context is a retrieved snippet handed to the answer generator.
type Context struct {
	Metadata
	Score float64
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat transcript. Contexts is only set on assistant messages.
type Message struct {
	Role     Role
	Content  string
	Contexts []Context
}
