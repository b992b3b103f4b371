// Package opset provides the closed, statically linked operator set
// adapted from the teacher's AFL-style and type-aware mutators
// (internal no longer present: see DESIGN.md — the originals lived at
// internal/mutator/afl.go and internal/mutator/smart.go), re-expressed
// in the two-positional-argument shape spec.md §3 requires of an
// operator: func([]byte, mutationContext) ([]byte, error).
package opset

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Registry wires these operators into internal/mutate/load.StaticSource.
// Option (a) of spec.md §9 Design Notes: a closed registry is preferred
// when the operator set doesn't need runtime extension.
func Registry() map[string]func([]byte, map[string]any) ([]byte, error) {
	return map[string]func([]byte, map[string]any) ([]byte, error){
		"bit_flip":          BitFlip,
		"byte_swap":         ByteSwap,
		"arithmetic_add":    ArithmeticAdd,
		"interesting_value": InterestingValue,
		"dictionary_insert": DictionaryInsert,
		"insert_random":     InsertRandomBytes,
		"havoc_splice":      HavocSplice,
	}
}

var interestingBytes = []byte{0x00, 0x01, 0x7f, 0x80, 0xff}

var interestingInts32 = []int32{0, 1, -1, 16, 32, 64, 100, 127, 128, 255, 256, 512, 1024, 1 << 15, -(1 << 15), 1<<31 - 1, -(1 << 31)}

// BitFlip flips a single random bit, AFL-style. Grounded on the
// teacher's afl.go bit-flip mutator.
func BitFlip(input []byte, _ map[string]any) ([]byte, error) {
	if len(input) == 0 {
		return append([]byte{}, interestingBytes[0]), nil
	}
	out := append([]byte{}, input...)
	byteIdx := randIntn(len(out))
	bitIdx := uint(randIntn(8))
	out[byteIdx] ^= 1 << bitIdx
	return out, nil
}

// ByteSwap swaps two random byte positions.
func ByteSwap(input []byte, _ map[string]any) ([]byte, error) {
	if len(input) < 2 {
		return append([]byte{}, input...), nil
	}
	out := append([]byte{}, input...)
	i := randIntn(len(out))
	j := randIntn(len(out))
	out[i], out[j] = out[j], out[i]
	return out, nil
}

// ArithmeticAdd adds a small random delta to a 32-bit little-endian
// window of the input, with overflow wraparound (AFL-style arithmetic
// mutation).
func ArithmeticAdd(input []byte, _ map[string]any) ([]byte, error) {
	if len(input) < 4 {
		return append([]byte{}, input...), nil
	}
	out := append([]byte{}, input...)
	offset := randIntn(len(out) - 3)
	delta := int32(randIntn(35) - 17) // [-17, 17]
	v := int32(binary.LittleEndian.Uint32(out[offset : offset+4]))
	binary.LittleEndian.PutUint32(out[offset:offset+4], uint32(v+delta))
	return out, nil
}

// InterestingValue overwrites a 4-byte window with a classic
// boundary-condition constant (0, -1, MAX_INT, ...).
func InterestingValue(input []byte, _ map[string]any) ([]byte, error) {
	if len(input) < 4 {
		return append([]byte{}, input...), nil
	}
	out := append([]byte{}, input...)
	offset := randIntn(len(out) - 3)
	val := interestingInts32[randIntn(len(interestingInts32))]
	binary.LittleEndian.PutUint32(out[offset:offset+4], uint32(val))
	return out, nil
}

// DictionaryInsert inserts a token drawn from mutationContext["dictionary"]
// (a []string, if the caller populated it) at a random offset; falls
// back to a single interesting byte when no dictionary is supplied.
func DictionaryInsert(input []byte, mutationContext map[string]any) ([]byte, error) {
	var token []byte
	if dict, ok := mutationContext["dictionary"].([]string); ok && len(dict) > 0 {
		token = []byte(dict[randIntn(len(dict))])
	} else {
		token = []byte{interestingBytes[randIntn(len(interestingBytes))]}
	}
	offset := 0
	if len(input) > 0 {
		offset = randIntn(len(input) + 1)
	}
	out := make([]byte, 0, len(input)+len(token))
	out = append(out, input[:offset]...)
	out = append(out, token...)
	out = append(out, input[offset:]...)
	return out, nil
}

// InsertRandomBytes appends two cryptographically random bytes,
// grounded directly on original_source/operators.py's
// insert_random_bytes — the one operator the Python reference shipped.
func InsertRandomBytes(input []byte, _ map[string]any) ([]byte, error) {
	extra := make([]byte, 2)
	if _, err := rand.Read(extra); err != nil {
		return nil, fmt.Errorf("opset: insert_random_bytes: %w", err)
	}
	out := make([]byte, 0, len(input)+2)
	out = append(out, input...)
	out = append(out, extra...)
	return out, nil
}

// HavocSplice concatenates a random prefix of input with a random
// suffix of a dictionary entry in mutationContext["splice_pool"] (a
// [][]byte), if present; otherwise it is equivalent to InsertRandomBytes.
func HavocSplice(input []byte, mutationContext map[string]any) ([]byte, error) {
	pool, ok := mutationContext["splice_pool"].([][]byte)
	if !ok || len(pool) == 0 {
		return InsertRandomBytes(input, mutationContext)
	}
	donor := pool[randIntn(len(pool))]
	if len(input) == 0 || len(donor) == 0 {
		return append([]byte{}, donor...), nil
	}
	cut1 := randIntn(len(input))
	cut2 := randIntn(len(donor))
	out := make([]byte, 0, cut1+len(donor)-cut2)
	out = append(out, input[:cut1]...)
	out = append(out, donor[cut2:]...)
	return out, nil
}

func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(b[:]) % uint64(n))
}
