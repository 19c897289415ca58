package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken counts tokens with a BPE encoding. The encoding is loaded on
// first use; if loading fails the estimator takes over.
type Tiktoken struct {
	encoding string
	fallback *Estimator

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktoken picks an encoding for model. Models outside the OpenAI
// families use cl100k_base, which is close enough for Mistral and Mixtral
// style vocabularies when only accounting is needed.
func NewTiktoken(model string) *Tiktoken {
	encoding := "cl100k_base"
	if strings.HasPrefix(model, "gpt-4o") || strings.HasPrefix(model, "o1") {
		encoding = "o200k_base"
	}
	return &Tiktoken{encoding: encoding, fallback: NewEstimator()}
}

func (t *Tiktoken) load() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.load()
	if t.enc == nil {
		return t.fallback.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Name() string { return fmt.Sprintf("tiktoken[%s]", t.encoding) }
