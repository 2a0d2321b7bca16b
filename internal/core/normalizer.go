package core

import "bytes"

// OutputNormalizer rewrites artifact content after the header is trimmed.
type OutputNormalizer interface {
	// Normalize returns the processed content.
	Normalize(content []byte) []byte
}

// RawNormalizer performs no normalization, preserving raw bytes exactly.
type RawNormalizer struct{}

// NewRawNormalizer creates a normalizer that preserves content unchanged.
func NewRawNormalizer() *RawNormalizer {
	return &RawNormalizer{}
}

// Normalize returns content unchanged.
func (n *RawNormalizer) Normalize(content []byte) []byte {
	return content
}

// NewlineNormalizer converts CRLF and lone CR line endings to LF, the way a
// text-mode rewrite of the artifact would.
type NewlineNormalizer struct {
	// Inner normalizer to apply after line ending normalization
	Inner OutputNormalizer
}

// NewNewlineNormalizer creates a normalizer that standardizes line endings.
func NewNewlineNormalizer(inner OutputNormalizer) *NewlineNormalizer {
	return &NewlineNormalizer{Inner: inner}
}

// Normalize converts CRLF and CR to LF and optionally applies the inner
// normalizer.
func (n *NewlineNormalizer) Normalize(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	result = bytes.ReplaceAll(result, []byte("\r"), []byte("\n"))

	if n.Inner != nil {
		result = n.Inner.Normalize(result)
	}

	return result
}

// NormalizerFor returns the normalizer matching the newline option.
func NormalizerFor(normalizeNewlines bool) OutputNormalizer {
	if normalizeNewlines {
		return NewNewlineNormalizer(nil)
	}
	return NewRawNormalizer()
}
