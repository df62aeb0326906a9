package rag

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Ingestor splits documents into overlapping chunks. Splits prefer paragraph
// breaks, then sentence ends, nearest the target size; when no boundary falls
// within tolerance the text is cut hard at the target. Consecutive chunks
// share overlap runes so no semantic unit is fully lost at a chunk boundary.
type Ingestor struct {
	size    int
	overlap int
}

// NewIngestor creates an Ingestor with the given chunk size and overlap,
// both in runes.
func NewIngestor(size, overlap int) (*Ingestor, error) {
	switch {
	case size <= 0:
		return nil, errors.New("rag: chunk size must be positive")
	case overlap < 0:
		return nil, errors.New("rag: chunk overlap must be non-negative")
	case overlap >= size:
		return nil, errors.New("rag: chunk overlap must be smaller than chunk size")
	}

	return &Ingestor{size: size, overlap: overlap}, nil
}

// Ingest splits one document into chunks. The chunks tile the document: each
// chunk's Start is the previous chunk's End minus the overlap, so their
// union covers the full text with no gap.
func (in *Ingestor) Ingest(doc Document) ([]Chunk, error) {
	if !utf8.ValidString(doc.Text) {
		return nil, &DocumentError{DocumentID: doc.ID, Name: doc.Name, Err: errors.New("text is not valid UTF-8")}
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, &DocumentError{DocumentID: doc.ID, Name: doc.Name, Err: errors.New("document is empty")}
	}

	runes := []rune(doc.Text)

	var chunks []Chunk
	start := 0
	for {
		end := start + in.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = in.cut(runes, start, end)
		}

		chunks = append(chunks, Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Index:      len(chunks),
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
		})

		if end == len(runes) {
			return chunks, nil
		}

		next := end - in.overlap
		if next <= start {
			next = end
		}
		start = next
	}
}

// IngestAll ingests a batch of documents. One document failing never aborts
// the rest; the returned error, if any, is an *IngestionError listing the
// failures, and the returned chunks cover every document that succeeded.
func (in *Ingestor) IngestAll(docs []Document) ([]Chunk, error) {
	var (
		all    []Chunk
		failed []*DocumentError
	)

	for _, d := range docs {
		chunks, err := in.Ingest(d)
		if err != nil {
			var de *DocumentError
			if !errors.As(err, &de) {
				de = &DocumentError{DocumentID: d.ID, Name: d.Name, Err: err}
			}
			failed = append(failed, de)
			continue
		}
		all = append(all, chunks...)
	}

	if len(failed) > 0 {
		return all, &IngestionError{Failed: failed}
	}

	return all, nil
}

// cut picks the split position in (start, target]: the paragraph break
// nearest target within tolerance, else the sentence end nearest target,
// else target itself.
func (in *Ingestor) cut(runes []rune, start, target int) int {
	tol := in.size / 4
	if tol < 1 {
		tol = 1
	}

	low := target - tol
	if low <= start {
		low = start + 1
	}

	if p := lastParagraphBreak(runes, low, target); p > 0 {
		return p
	}
	if s := lastSentenceEnd(runes, low, target); s > 0 {
		return s
	}

	return target
}

// lastParagraphBreak returns the highest position i in [low, high] such that
// the text before i ends with a blank line, or 0 if there is none.
func lastParagraphBreak(runes []rune, low, high int) int {
	for i := high; i >= low; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	return 0
}

// lastSentenceEnd returns the highest position i in [low, high] such that
// the text before i ends with sentence punctuation followed by whitespace,
// or 0 if there is none.
func lastSentenceEnd(runes []rune, low, high int) int {
	for i := high; i >= low; i-- {
		if i >= 2 && isSentencePunct(runes[i-2]) && unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return 0
}

func isSentencePunct(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
