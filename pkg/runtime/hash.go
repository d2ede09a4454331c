package runtime

import (
	"encoding/binary"
	"math"
)

const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

// HashWithTag seeds a new FNV-1a stream tagged with the provided discriminator.
func HashWithTag(tag byte, data []byte) uint64 {
	hash := fnvOffset64
	hash = HashBytes(hash, []byte{tag})
	if len(data) > 0 {
		hash = HashBytes(hash, data)
	}
	return hash
}

// HashBytes feeds the FNV-1a state with additional data.
func HashBytes(hash uint64, data []byte) uint64 {
	for _, b := range data {
		hash ^= uint64(b)
		hash *= fnvPrime64
	}
	return hash
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// HashOf digests a value consistently with Eql.
func HashOf(v Value) uint64 {
	switch x := v.(type) {
	case NilValue:
		return HashWithTag(0, nil)
	case BoolValue:
		if x.Val {
			return HashWithTag(1, []byte{1})
		}
		return HashWithTag(1, []byte{0})
	case IntegerValue:
		return HashWithTag(2, x.Val.Bytes())
	case FloatValue:
		return HashWithTag(3, uint64Bytes(math.Float64bits(x.Val)))
	case *StringValue:
		return HashWithTag(4, []byte(x.Val))
	case SymbolValue:
		return HashWithTag(5, []byte(x.Name))
	case *ArrayValue:
		h := HashWithTag(6, nil)
		for _, el := range x.Elements {
			h = HashBytes(h, uint64Bytes(HashOf(el)))
		}
		return h
	case RangeValue:
		h := HashWithTag(7, uint64Bytes(HashOf(x.Start)))
		return HashBytes(h, uint64Bytes(HashOf(x.End)))
	case *ObjectValue:
		return HashWithTag(8, uint64Bytes(x.id))
	case *ClassValue:
		return HashWithTag(9, uint64Bytes(x.id))
	default:
		return HashWithTag(10, nil)
	}
}

type hashEntry struct {
	key, value Value
	deleted    bool
}

// HashValue is an insertion-ordered hash keyed by eql? equality.
type HashValue struct {
	entries []hashEntry
	buckets map[uint64][]int
	live    int
	Default Value
	// DefaultProc, when set, computes missing values from (hash, key).
	DefaultProc *ProcValue
}

func (h *HashValue) Kind() Kind { return KindHash }

func NewHash() *HashValue {
	return &HashValue{buckets: map[uint64][]int{}, Default: Nil}
}

func (h *HashValue) find(key Value) (int, uint64) {
	digest := HashOf(key)
	for _, i := range h.buckets[digest] {
		if !h.entries[i].deleted && Eql(h.entries[i].key, key) {
			return i, digest
		}
	}
	return -1, digest
}

func (h *HashValue) Get(key Value) (Value, bool) {
	if i, _ := h.find(key); i >= 0 {
		return h.entries[i].value, true
	}
	return nil, false
}

func (h *HashValue) Set(key, value Value) {
	i, digest := h.find(key)
	if i >= 0 {
		h.entries[i].value = value
		return
	}
	if s, ok := key.(*StringValue); ok && !s.Frozen {
		key = &StringValue{Val: s.Val, Frozen: true}
	}
	h.entries = append(h.entries, hashEntry{key: key, value: value})
	h.buckets[digest] = append(h.buckets[digest], len(h.entries)-1)
	h.live++
}

func (h *HashValue) Delete(key Value) (Value, bool) {
	i, _ := h.find(key)
	if i < 0 {
		return nil, false
	}
	h.entries[i].deleted = true
	h.live--
	return h.entries[i].value, true
}

func (h *HashValue) Len() int { return h.live }

// Each visits entries in insertion order until fn returns false.
func (h *HashValue) Each(fn func(key, value Value) bool) {
	for _, e := range h.entries {
		if e.deleted {
			continue
		}
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (h *HashValue) Keys() []Value {
	out := make([]Value, 0, h.live)
	h.Each(func(k, _ Value) bool { out = append(out, k); return true })
	return out
}

// Clear removes every entry.
func (h *HashValue) Clear() {
	h.entries = nil
	h.buckets = map[uint64][]int{}
	h.live = 0
}

func (h *HashValue) Values() []Value {
	out := make([]Value, 0, h.live)
	h.Each(func(_, v Value) bool { out = append(out, v); return true })
	return out
}
