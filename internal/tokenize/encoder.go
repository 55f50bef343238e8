// Package tokenize turns raw text into fixed-length model inputs.
package tokenize

import (
	"strings"
)

const (
	// DefaultMaxLength is the fixed sequence length fed to the embedding model.
	DefaultMaxLength = 128

	// Special token ids of the BERT uncased vocabulary used by all-MiniLM-L6-v2.
	DefaultPadID int64 = 0
	DefaultCLSID int64 = 101
	DefaultSEPID int64 = 102
)

// WordPiece splits text into vocabulary ids, without special tokens.
type WordPiece interface {
	Tokenize(text string) ([]int64, error)
}

// Encoding is a fixed-length model input. All three slices have the same length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64 // always zero: a single segment is used
}

// Len returns the sequence length.
func (e Encoding) Len() int {
	return len(e.InputIDs)
}

// RealTokens returns the number of non-pad positions.
func (e Encoding) RealTokens() int {
	n := 0
	for _, m := range e.AttentionMask {
		if m != 0 {
			n++
		}
	}
	return n
}

// Encoder pads and truncates WordPiece output to a fixed length.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	wp        WordPiece
	maxLength int
	padID     int64
	clsID     int64
	sepID     int64
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithMaxLength sets the fixed output length.
func WithMaxLength(n int) Option {
	return func(e *Encoder) {
		e.maxLength = n
	}
}

// WithSpecialTokens sets the pad, classifier and separator token ids.
func WithSpecialTokens(pad, cls, sep int64) Option {
	return func(e *Encoder) {
		e.padID = pad
		e.clsID = cls
		e.sepID = sep
	}
}

// NewEncoder creates an encoder over the given vocabulary.
func NewEncoder(wp WordPiece, opts ...Option) *Encoder {
	e := &Encoder{
		wp:        wp,
		maxLength: DefaultMaxLength,
		padID:     DefaultPadID,
		clsID:     DefaultCLSID,
		sepID:     DefaultSEPID,
	}
	for _, opt := range opts {
		opt(e)
	}
	// [CLS] and [SEP] need two slots.
	if e.maxLength < 2 {
		e.maxLength = 2
	}
	return e
}

// MaxLength returns the fixed sequence length.
func (e *Encoder) MaxLength() int {
	return e.maxLength
}

// Encode produces the fixed-length encoding of text.
//
// Non-empty text becomes [CLS] tokens [SEP], truncated to the first tokens that
// fit and right-padded with the pad id. Empty text, text that yields no tokens,
// or a tokenizer failure produce an all-pad sequence with a zero mask rather
// than an error.
func (e *Encoder) Encode(text string) Encoding {
	enc := e.empty()

	if strings.TrimSpace(text) == "" || e.wp == nil {
		return enc
	}

	ids, err := e.wp.Tokenize(text)
	if err != nil || len(ids) == 0 {
		return enc
	}

	if maxContent := e.maxLength - 2; len(ids) > maxContent {
		ids = ids[:maxContent]
	}

	enc.InputIDs[0] = e.clsID
	enc.AttentionMask[0] = 1
	for i, id := range ids {
		enc.InputIDs[i+1] = id
		enc.AttentionMask[i+1] = 1
	}
	last := len(ids) + 1
	enc.InputIDs[last] = e.sepID
	enc.AttentionMask[last] = 1

	return enc
}

// empty returns an all-pad encoding.
func (e *Encoder) empty() Encoding {
	enc := Encoding{
		InputIDs:      make([]int64, e.maxLength),
		AttentionMask: make([]int64, e.maxLength),
		TokenTypeIDs:  make([]int64, e.maxLength),
	}
	if e.padID != 0 {
		for i := range enc.InputIDs {
			enc.InputIDs[i] = e.padID
		}
	}
	return enc
}
