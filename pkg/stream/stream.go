// Package stream implements the encoded byte streams backing a column:
// chunked (optionally compressed) stream loading with checkpoint seeking, and
// the primitive encoders and decoders layered on top of chunks.
//
// A column is stored as a set of streams keyed by [ID]. The DATA stream holds
// encoded values; the PRESENT stream holds a bit per row describing which
// rows are non-NULL; auxiliary streams (LENGTH, DICTIONARY_DATA, SECONDARY)
// exist for variable-width and dictionary-coded columns.
package stream

import "fmt"

// Kind enumerates the roles a stream can play within a column.
type Kind int

const (
	KindPresent Kind = iota
	KindData
	KindLength
	KindDictionaryData
	KindSecondary
)

// String returns the name of the stream kind.
func (k Kind) String() string {
	switch k {
	case KindPresent:
		return "PRESENT"
	case KindData:
		return "DATA"
	case KindLength:
		return "LENGTH"
	case KindDictionaryData:
		return "DICTIONARY_DATA"
	case KindSecondary:
		return "SECONDARY"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ID identifies one stream within a stripe.
type ID struct {
	Column int
	Kind   Kind
}

// String returns a readable form of the ID, such as "DATA of column 3".
func (id ID) String() string {
	return fmt.Sprintf("%s of column %d", id.Kind, id.Column)
}

// A CorruptionError reports malformed, truncated, or inconsistent stream
// data. Corruption is always fatal to the read that discovered it; it is
// never retried or interpolated as NULL.
type CorruptionError struct {
	Source string // Identifier of the backing source, such as a file name.
	Stream ID
	Msg    string
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted stream %s in %q: %s", e.Stream, e.Source, e.Msg)
}

func corruptionf(source string, id ID, format string, args ...any) error {
	return &CorruptionError{
		Source: source,
		Stream: id,
		Msg:    fmt.Sprintf(format, args...),
	}
}
