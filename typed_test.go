package phantomheap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/phantomheap/codec"
	"github.com/hupe1980/phantomheap/compress"
)

type document struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags,omitempty"`
}

func TestTyped_RoundTrip(t *testing.T) {
	h := newTestHeap(t, 1<<20, 0.8)

	docs := NewTyped[document](h)

	in := document{Title: "quarterly report", Body: "numbers went up", Tags: []string{"finance"}}
	id, err := docs.Put(in)
	require.NoError(t, err)

	out, err := docs.Get(id)
	require.NoError(t, err)
	require.Equal(t, in, out)

	require.NoError(t, docs.Remove(id))
	_, err = docs.Get(id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTyped_Codecs(t *testing.T) {
	h := newTestHeap(t, 1<<20, 0.8)

	in := document{Title: "codec check", Body: "same payload either way"}

	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			docs := NewTyped[document](h, WithCodec(c))

			id, err := docs.Put(in)
			require.NoError(t, err)

			out, err := docs.Get(id)
			require.NoError(t, err)
			require.Equal(t, in, out)
		})
	}
}

func TestTyped_Compression(t *testing.T) {
	h := newTestHeap(t, 1<<20, 0.8)

	in := document{
		Title: "war and peace",
		Body:  strings.Repeat("well, prince, so genoa and lucca ", 1024),
	}

	for _, typ := range []compress.Type{compress.TypeNone, compress.TypeLZ4, compress.TypeZSTD} {
		docs := NewTyped[document](h, WithCompression(typ))

		id, err := docs.Put(in)
		require.NoError(t, err)

		out, err := docs.Get(id)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestTyped_CompressionShrinksStoredBytes(t *testing.T) {
	h := newTestHeap(t, 1<<20, 0.8)

	in := document{Body: strings.Repeat("compressible ", 4096)}

	plain := NewTyped[document](h)
	id1, err := plain.Put(in)
	require.NoError(t, err)
	rawUsed := h.Used()

	packed := NewTyped[document](h, WithCompression(compress.TypeZSTD))
	id2, err := packed.Put(in)
	require.NoError(t, err)

	require.Less(t, h.Used()-rawUsed, rawUsed)

	require.NoError(t, h.Remove(id1))
	require.NoError(t, h.Remove(id2))
}

func TestTyped_SerializationErrorDoesNotAllocate(t *testing.T) {
	h := newTestHeap(t, 1<<20, 0.8)

	bad := NewTyped[chan int](h)

	_, err := bad.Put(make(chan int))
	require.ErrorIs(t, err, ErrSerialization)

	require.Equal(t, uint64(0), h.Used())
	require.Equal(t, 0, h.Len())
}
