package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestBuilderRoundTrip(t *testing.T) {
	inner := NewBuilder().String(1, "inner-value").Bytes()

	b := NewBuilder().
		String(1, "hello").
		Uint64(2, 42).
		SInt64(3, -7).
		Bool(4, true).
		Bytes_(5, []byte{1, 2, 3}).
		Message(6, inner)

	fields, err := ParseFields(b.Bytes())
	require.NoError(t, err)

	f, ok := First(fields, 1)
	require.True(t, ok)
	assert.Equal(t, "hello", string(f.Bytes))

	f, ok = First(fields, 2)
	require.True(t, ok)
	assert.Equal(t, uint64(42), f.Varint)

	f, ok = First(fields, 3)
	require.True(t, ok)
	assert.Equal(t, int64(-7), SInt64(f.Varint))

	f, ok = First(fields, 4)
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Varint)

	f, ok = First(fields, 6)
	require.True(t, ok)
	innerFields, err := ParseFields(f.Bytes)
	require.NoError(t, err)
	innerF, ok := First(innerFields, 1)
	require.True(t, ok)
	assert.Equal(t, "inner-value", string(innerF.Bytes))
}

func TestRepeatedFields(t *testing.T) {
	b := NewBuilder().String(1, "a").String(1, "b").String(1, "c")
	fields, err := ParseFields(b.Bytes())
	require.NoError(t, err)
	all := All(fields, 1)
	require.Len(t, all, 3)
	assert.Equal(t, "a", string(all[0].Bytes))
	assert.Equal(t, "c", string(all[2].Bytes))
}

func TestNegativeInt64UsesFullWidthVarint(t *testing.T) {
	b := NewBuilder().Int64(1, -3)
	fields, err := ParseFields(b.Bytes())
	require.NoError(t, err)
	f, ok := First(fields, 1)
	require.True(t, ok)
	assert.Equal(t, int64(-3), int64(f.Varint))
	// proto's plain (non-zigzag) int64 wire form for negative numbers is
	// always a 10-byte varint (9 continuation bytes plus a final byte),
	// following the single tag byte.
	assert.Equal(t, 10, len(b.Bytes())-1)
	_ = protowire.Number(1)
}
