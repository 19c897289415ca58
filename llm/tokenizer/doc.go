// Package tokenizer counts tokens for inference usage accounting when the
// backend does not report usage. It offers an exact tiktoken counter and a
// character-based estimator.
package tokenizer
