package tokenize

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Vocabulary is a WordPiece backed by a HuggingFace tokenizer.json file.
type Vocabulary struct {
	tk    *tokenizer.Tokenizer
	padID int64
	clsID int64
	sepID int64
}

// LoadVocabulary reads a tokenizer.json file and resolves its special tokens.
func LoadVocabulary(path string) (*Vocabulary, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %s: %w", path, err)
	}

	v := &Vocabulary{tk: tk}
	for token, dst := range map[string]*int64{
		"[PAD]": &v.padID,
		"[CLS]": &v.clsID,
		"[SEP]": &v.sepID,
	} {
		id, ok := tk.TokenToId(token)
		if !ok {
			return nil, fmt.Errorf("tokenizer %s has no %s token", path, token)
		}
		*dst = int64(id)
	}

	return v, nil
}

// Tokenize returns vocabulary ids for text without special tokens.
// Positions the tokenizer itself marks as padding are dropped.
func (v *Vocabulary) Tokenize(text string) ([]int64, error) {
	enc, err := v.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}

	ids := make([]int64, 0, len(enc.Ids))
	for i, id := range enc.Ids {
		if i < len(enc.AttentionMask) && enc.AttentionMask[i] == 0 {
			continue
		}
		ids = append(ids, int64(id))
	}
	return ids, nil
}

// Encoder returns an Encoder using this vocabulary's special tokens.
func (v *Vocabulary) Encoder(maxLength int) *Encoder {
	return NewEncoder(v, WithMaxLength(maxLength), WithSpecialTokens(v.padID, v.clsID, v.sepID))
}
