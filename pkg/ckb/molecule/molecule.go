// Package molecule implements the subset of the molecule serialization format
// needed to build and decode CKB scripts, transactions and bridge cell data.
//
// All integers are little-endian. A table is a 4-byte total size, one 4-byte
// offset per field, followed by the field bodies. A fixvec is a 4-byte item
// count followed by fixed-size items. A dynvec has the same header layout as a
// table.
package molecule

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

const headerUnit = 4

var (
	// ErrTruncated is returned when the input is shorter than its header claims.
	ErrTruncated = errors.New("molecule: truncated data")
	// ErrFieldCount is returned when a table does not carry the expected number of fields.
	ErrFieldCount = errors.New("molecule: unexpected field count")
)

// Uint32 encodes v as 4 little-endian bytes.
func Uint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// Uint64 encodes v as 8 little-endian bytes.
func Uint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Uint128 encodes v as 16 little-endian bytes. v must be non-negative and fit in 128 bits.
func Uint128(v *big.Int) ([]byte, error) {
	if v == nil || v.Sign() < 0 {
		return nil, fmt.Errorf("molecule: uint128 must be non-negative")
	}
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("molecule: value %s overflows uint128", v.String())
	}
	be := v.FillBytes(make([]byte, 16))
	return reverse(be), nil
}

// DecodeUint128 decodes a 16-byte little-endian integer.
func DecodeUint128(b []byte) (*big.Int, error) {
	if len(b) != 16 {
		return nil, fmt.Errorf("molecule: uint128 needs 16 bytes, got %d", len(b))
	}
	return new(big.Int).SetBytes(reverse(b)), nil
}

// Bytes encodes b as a fixvec<byte>.
func Bytes(b []byte) []byte {
	out := make([]byte, 0, headerUnit+len(b))
	out = append(out, Uint32(uint32(len(b)))...)
	return append(out, b...)
}

// DecodeBytes decodes a fixvec<byte> and requires it to span exactly the input.
func DecodeBytes(b []byte) ([]byte, error) {
	if len(b) < headerUnit {
		return nil, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(b)
	if uint64(len(b)-headerUnit) != uint64(n) {
		return nil, fmt.Errorf("molecule: bytes length %d does not match header %d", len(b)-headerUnit, n)
	}
	out := make([]byte, n)
	copy(out, b[headerUnit:])
	return out, nil
}

// FixVec encodes items that all share the same size.
func FixVec(items [][]byte) []byte {
	out := Uint32(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// Table encodes fields as a molecule table. DynVec shares the same layout.
func Table(fields ...[]byte) []byte {
	header := headerUnit * (1 + len(fields))
	total := header
	for _, f := range fields {
		total += len(f)
	}

	out := make([]byte, 0, total)
	out = append(out, Uint32(uint32(total))...)
	offset := header
	for _, f := range fields {
		out = append(out, Uint32(uint32(offset))...)
		offset += len(f)
	}
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

// DynVec encodes variable-size items.
func DynVec(items [][]byte) []byte {
	if len(items) == 0 {
		return Uint32(headerUnit)
	}
	return Table(items...)
}

// Option encodes an optional value: absent is zero bytes, present is the value itself.
func Option(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}

// DecodeTable splits a table into exactly fieldCount raw field bodies.
func DecodeTable(b []byte, fieldCount int) ([][]byte, error) {
	if len(b) < headerUnit {
		return nil, ErrTruncated
	}
	total := int(binary.LittleEndian.Uint32(b))
	if total != len(b) {
		return nil, fmt.Errorf("molecule: table size %d does not match data length %d", total, len(b))
	}
	if total == headerUnit {
		if fieldCount != 0 {
			return nil, ErrFieldCount
		}
		return [][]byte{}, nil
	}
	if total < 2*headerUnit {
		return nil, ErrTruncated
	}

	first := int(binary.LittleEndian.Uint32(b[headerUnit:]))
	if first%headerUnit != 0 || first < 2*headerUnit || first > total {
		return nil, fmt.Errorf("molecule: invalid first offset %d", first)
	}
	count := first/headerUnit - 1
	if count != fieldCount {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrFieldCount, fieldCount, count)
	}

	offsets := make([]int, count+1)
	for i := 0; i < count; i++ {
		offsets[i] = int(binary.LittleEndian.Uint32(b[headerUnit*(i+1):]))
	}
	offsets[count] = total

	fields := make([][]byte, count)
	for i := 0; i < count; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > total {
			return nil, fmt.Errorf("molecule: invalid offset for field %d", i)
		}
		fields[i] = b[start:end]
	}
	return fields, nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
