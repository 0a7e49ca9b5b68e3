package service

import (
	"strings"

	"finqa/internal/domain"
)

const (
	contextDelimiter = "\n\n---\n\n"

	// UnavailableMessage is the whole answer when retrieval found nothing usable.
	UnavailableMessage = "Based on the most relevant documents, the information you asked for is not available."

	promptTemplate = `Task: You are a professional financial analyst assistant. Based ONLY on the highly relevant context snippets provided below, answer the user's question clearly and concisely.
If the information is still not sufficient, state clearly: "Based on the most relevant documents, this information is not available." Do not make up information.

RELEVANT CONTEXT:
{context}

---
USER'S QUESTION:
{question}

ANSWER (based on the provided context):
`
)

// BuildPrompt renders the instruction template around the joined context texts.
func BuildPrompt(question string, contexts []domain.Context) string {
	texts := make([]string, len(contexts))
	for i, c := range contexts {
		texts[i] = c.Text
	}
	r := strings.NewReplacer("{context}", strings.Join(texts, contextDelimiter), "{question}", question)
	return r.Replace(promptTemplate)
}
