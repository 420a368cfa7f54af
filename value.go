package gravix

import "encoding/binary"

// Value word layout. The table reserves bit 63 for its tombstone flag;
// the remaining 63 bits are ours. Bit 62 distinguishes inline payloads
// from value-store references:
//
//	inline:    [62]=1  [58:56]=length  [47:0]=payload bytes, little-endian
//	reference: [62]=0  [61:0]=pagestore.Ref (never zero for live records)
const (
	inlineFlag     = uint64(1) << 62
	inlineLenShift = 56
	inlineLenMask  = uint64(7) << inlineLenShift

	// MaxInlineValue is the largest payload stored directly in the slot's
	// value word instead of the value store.
	MaxInlineValue = 6
)

func encodeInline(value []byte) uint64 {
	var b [8]byte
	copy(b[:], value)
	w := binary.LittleEndian.Uint64(b[:])
	return inlineFlag | uint64(len(value))<<inlineLenShift | w
}

func isInline(word uint64) bool {
	return word&inlineFlag != 0
}

func decodeInline(word uint64) []byte {
	n := int(word & inlineLenMask >> inlineLenShift)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], word&^(inlineFlag|inlineLenMask))
	out := make([]byte, n)
	copy(out, b[:n])
	return out
}
