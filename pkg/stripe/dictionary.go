package stripe

import (
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opencolumn/stripescan/internal/util/bufpool"
	"github.com/opencolumn/stripescan/pkg/stream"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// LoadDictionary decodes the stripe-scoped dictionary of a
// dictionary-encoded column from its DICTIONARY_DATA and LENGTH streams. The
// returned dictionary is immutable and safe to share across readers.
func LoadDictionary(s *Stripe, columnID int) (*vector.Dict, error) {
	col, err := s.Column(columnID)
	if err != nil {
		return nil, err
	}
	if col.Encoding != EncodingDictionary {
		return nil, fmt.Errorf("column %d of %q is %s encoded, not DICTIONARY", columnID, s.Source, col.Encoding)
	}

	lengthStream, ok := s.OpenStream(columnID, stream.KindLength)
	if !ok {
		return nil, &stream.CorruptionError{
			Source: s.Source,
			Stream: stream.ID{Column: columnID, Kind: stream.KindLength},
			Msg:    "dictionary column missing LENGTH stream",
		}
	}
	defer lengthStream.Close()

	dataStream, ok := s.OpenStream(columnID, stream.KindDictionaryData)
	if !ok {
		return nil, &stream.CorruptionError{
			Source: s.Source,
			Stream: stream.ID{Column: columnID, Kind: stream.KindDictionaryData},
			Msg:    "dictionary column missing DICTIONARY_DATA stream",
		}
	}
	defer dataStream.Close()

	var (
		lengths = stream.NewIntDecoder(lengthStream, false, s.Source, stream.ID{Column: columnID, Kind: stream.KindLength})
		offsets = make([]int32, 0, col.DictLen+1)
		total   int
	)
	offsets = append(offsets, 0)
	for i := 0; i < col.DictLen; i++ {
		n, err := lengths.Next()
		if err != nil {
			return nil, fmt.Errorf("reading dictionary entry length %d of column %d in %q: %w", i, columnID, s.Source, err)
		}
		total += int(n)
		offsets = append(offsets, int32(total))
	}

	// Stage contents through a pooled buffer so a short read does not leave
	// a half-sized long-lived allocation behind.
	staging := bufpool.Get(total)
	defer bufpool.Put(staging)

	if _, err := io.CopyN(staging, io.Reader(dataStream), int64(total)); err != nil {
		return nil, &stream.CorruptionError{
			Source: s.Source,
			Stream: stream.ID{Column: columnID, Kind: stream.KindDictionaryData},
			Msg:    fmt.Sprintf("dictionary contents truncated: %v", err),
		}
	}

	data := make([]byte, total)
	copy(data, staging.Bytes())

	return &vector.Dict{Data: data, Offsets: offsets}, nil
}

type dictKey struct {
	stripe *Stripe
	column int
}

// A DictCache caches decoded stripe dictionaries so concurrent scan tasks
// touching the same stripe share one decoded copy. Entries are immutable;
// eviction only drops a reference.
type DictCache struct {
	cache *lru.Cache[dictKey, *vector.Dict]
}

// NewDictCache returns a cache holding up to size decoded dictionaries.
func NewDictCache(size int) (*DictCache, error) {
	cache, err := lru.New[dictKey, *vector.Dict](size)
	if err != nil {
		return nil, err
	}
	return &DictCache{cache: cache}, nil
}

// Get returns the dictionary for the column, loading and caching it on the
// first request.
func (c *DictCache) Get(s *Stripe, columnID int) (*vector.Dict, error) {
	key := dictKey{stripe: s, column: columnID}
	if dict, ok := c.cache.Get(key); ok {
		return dict, nil
	}
	dict, err := LoadDictionary(s, columnID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, dict)
	return dict, nil
}
