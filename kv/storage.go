package kv

import "strings"

type Pair struct {
	Key, Value string
}

// Storage is an associative structure for storing (string, string) pairs. It acts
// as a map but uses linear search instead, which proves to be more efficient on
// relatively low amount of entries, which headers usually are. Insertion order is
// preserved and duplicate keys are allowed.
type Storage struct {
	pairs []Pair
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		pairs: make([]Pair, 0, n),
	}
}

// NewFromMap returns a new instance with already inserted values from given map.
// Note: as maps are unordered, resulting underlying structure will also contain
// unordered pairs.
func NewFromMap(m map[string]string) *Storage {
	s := NewPrealloc(len(m))

	for key, value := range m {
		s.Add(key, value)
	}

	return s
}

// Add adds a new pair of key and value, even if the key is already present.
func (s *Storage) Add(key, value string) *Storage {
	s.pairs = append(s.pairs, Pair{
		Key:   key,
		Value: value,
	})
	return s
}

// Set replaces the first pair holding the key, or adds a new one.
func (s *Storage) Set(key, value string) *Storage {
	for i, pair := range s.pairs {
		if strings.EqualFold(pair.Key, key) {
			s.pairs[i].Value = value
			return s
		}
	}

	return s.Add(key, value)
}

// Value returns the first value corresponding to the key, otherwise empty string.
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or the fallback.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns a value and a bool indicating whether it was found. Key comparison
// is case-insensitive.
func (s *Storage) Get(key string) (string, bool) {
	for _, pair := range s.pairs {
		if strings.EqualFold(pair.Key, key) {
			return pair.Value, true
		}
	}

	return "", false
}

// Values returns all the values corresponding to the key in insertion order.
func (s *Storage) Values(key string) (values []string) {
	for _, pair := range s.pairs {
		if strings.EqualFold(pair.Key, key) {
			values = append(values, pair.Value)
		}
	}

	return values
}

// Has tells whether at least one pair holds the key.
func (s *Storage) Has(key string) bool {
	_, found := s.Get(key)
	return found
}

// Pairs exposes the underlying pairs in insertion order. The slice must be treated
// as read-only.
func (s *Storage) Pairs() []Pair {
	return s.pairs
}

// Len returns the number of stored pairs.
func (s *Storage) Len() int {
	return len(s.pairs)
}

// Clear all the pairs, keeping the underlying storage for reuse.
func (s *Storage) Clear() *Storage {
	s.pairs = s.pairs[:0]
	return s
}

// Clone returns an independent deep copy of the storage.
func (s *Storage) Clone() *Storage {
	return &Storage{
		pairs: append([]Pair(nil), s.pairs...),
	}
}
