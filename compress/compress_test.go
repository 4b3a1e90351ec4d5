package compress

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("phantomheap "), 512)

	for _, typ := range []Type{TypeNone, TypeLZ4, TypeZSTD} {
		block, err := Encode(typ, compressible)
		require.NoError(t, err)

		got, err := Decode(block)
		require.NoError(t, err)
		require.Equal(t, compressible, got)
	}
}

func TestEncode_Shrinks(t *testing.T) {
	compressible := bytes.Repeat([]byte("phantomheap "), 512)

	for _, typ := range []Type{TypeLZ4, TypeZSTD} {
		block, err := Encode(typ, compressible)
		require.NoError(t, err)
		require.Less(t, len(block), len(compressible))
	}
}

func TestEncode_IncompressibleFallsBackToStored(t *testing.T) {
	noise := make([]byte, 4096)
	_, err := rand.Read(noise)
	require.NoError(t, err)

	for _, typ := range []Type{TypeLZ4, TypeZSTD} {
		block, err := Encode(typ, noise)
		require.NoError(t, err)
		require.Equal(t, TypeNone, Type(block[0]))

		got, err := Decode(block)
		require.NoError(t, err)
		require.Equal(t, noise, got)
	}
}

func TestDecode_CorruptBlocks(t *testing.T) {
	t.Run("truncated header", func(t *testing.T) {
		_, err := Decode([]byte{0, 1})
		require.ErrorIs(t, err, ErrCorruptBlock)
	})

	t.Run("stored size mismatch", func(t *testing.T) {
		block, err := Encode(TypeNone, []byte("abcd"))
		require.NoError(t, err)

		_, err = Decode(block[:len(block)-1])
		require.ErrorIs(t, err, ErrCorruptBlock)
	})

	t.Run("unknown type", func(t *testing.T) {
		block := []byte{99, 0, 0, 0, 0}
		_, err := Decode(block)
		require.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("unknown encode type", func(t *testing.T) {
		_, err := Encode(Type(42), []byte("x"))
		require.ErrorIs(t, err, ErrUnknownType)
	})
}
