package manifold_test

import (
	"errors"
	"testing"

	"github.com/pipelab/go-manifold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStreamOf verifies element order and the length hint.
func TestStreamOf(t *testing.T) {
	s := manifold.StreamOf(1, 2, 3)

	hint, ok := s.LengthHint()
	assert.True(t, ok)
	assert.Equal(t, 3, hint)

	items, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, items)
}

// TestStreamNextAfterEnd verifies that an exhausted stream keeps reporting
// the end.
func TestStreamNextAfterEnd(t *testing.T) {
	s := manifold.StreamOf("a")

	v, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = s.Next()
	require.ErrorIs(t, err, manifold.ErrEndOfStream)

	// The end is sticky.
	_, err = s.Next()
	require.ErrorIs(t, err, manifold.ErrEndOfStream)
}

// TestStreamErrorExhausts verifies that an element error is delivered once
// and the pull function is never called again.
func TestStreamErrorExhausts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	s := manifold.NewStream(func() (int, error) {
		calls++
		if calls == 1 {
			return 7, nil
		}
		return 0, boom
	})

	v, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = s.Next()
	require.ErrorIs(t, err, boom)

	// After the error the stream is exhausted, not retried.
	_, err = s.Next()
	require.ErrorIs(t, err, manifold.ErrEndOfStream)
	assert.Equal(t, 2, calls)
}

// TestStreamCollectError verifies that Collect surfaces an element error
// instead of a partial result.
func TestStreamCollectError(t *testing.T) {
	boom := errors.New("boom")
	i := 0
	s := manifold.NewStream(func() (int, error) {
		i++
		if i > 2 {
			return 0, boom
		}
		return i, nil
	})

	items, err := s.Collect()
	require.ErrorIs(t, err, boom)
	assert.Nil(t, items)
}

// TestEmptyStream verifies the empty stream.
func TestEmptyStream(t *testing.T) {
	s := manifold.EmptyStream[int]()

	items, err := s.Collect()
	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestDeferStream verifies that the inner stream is opened on first pull and
// only once.
func TestDeferStream(t *testing.T) {
	opens := 0
	s := manifold.DeferStream(func() (*manifold.Stream[int], error) {
		opens++
		return manifold.StreamOf(1, 2), nil
	})

	// Nothing runs before the first pull.
	assert.Equal(t, 0, opens)

	items, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)
	assert.Equal(t, 1, opens)
}

// TestDeferStreamOpenError verifies that an open failure surfaces on the
// first pull and exhausts the stream.
func TestDeferStreamOpenError(t *testing.T) {
	boom := errors.New("boom")
	s := manifold.DeferStream(func() (*manifold.Stream[int], error) {
		return nil, boom
	})

	_, err := s.Next()
	require.ErrorIs(t, err, boom)

	_, err = s.Next()
	require.ErrorIs(t, err, manifold.ErrEndOfStream)
}

// TestDeferStreamNilInner verifies that a nil inner stream reads as empty.
func TestDeferStreamNilInner(t *testing.T) {
	s := manifold.DeferStream(func() (*manifold.Stream[int], error) {
		return nil, nil
	})

	items, err := s.Collect()
	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestMapStream verifies element mapping and hint propagation.
func TestMapStream(t *testing.T) {
	src := manifold.StreamOf(1, 2, 3)
	mapped := manifold.MapStream(src, func(v int) (int, error) {
		return v * 2, nil
	})

	hint, ok := mapped.LengthHint()
	assert.True(t, ok)
	assert.Equal(t, 3, hint)

	items, err := mapped.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, items)
}

// TestMapStreamError verifies that a mapping error ends the stream at the
// failing element.
func TestMapStreamError(t *testing.T) {
	boom := errors.New("boom")
	src := manifold.StreamOf(1, 2, 3)
	mapped := manifold.MapStream(src, func(v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})

	v, err := mapped.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = mapped.Next()
	require.ErrorIs(t, err, boom)
}

// TestMultiplexFlattens verifies one-level flattening of grouped results.
func TestMultiplexFlattens(t *testing.T) {
	in := manifold.StreamOf(
		[]any{1, 2},
		[]any{},
		[]any{3},
	)

	items, err := manifold.Multiplex(in).Collect()
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, items)
}

// TestMultiplexOneLevelOnly verifies that nested groups are not flattened
// recursively.
func TestMultiplexOneLevelOnly(t *testing.T) {
	in := manifold.StreamOf([]any{[]any{1, 2}, 3})

	items, err := manifold.Multiplex(in).Collect()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []any{1, 2}, items[0])
	assert.Equal(t, 3, items[1])
}

// TestMultiplexMapPassthrough verifies that map-shaped items are delivered
// whole, never iterated.
func TestMultiplexMapPassthrough(t *testing.T) {
	item := map[string]any{"title": "first", "link": "http://example.com"}
	in := manifold.StreamOf[any](item, "scalar")

	items, err := manifold.Multiplex(in).Collect()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, item, items[0])
	assert.Equal(t, "scalar", items[1])
}

// TestMultiplexError verifies that an upstream error passes through.
func TestMultiplexError(t *testing.T) {
	boom := errors.New("boom")
	in := manifold.NewStream(func() ([]any, error) {
		return nil, boom
	})

	_, err := manifold.Multiplex(in).Collect()
	require.ErrorIs(t, err, boom)
}

// TestStreamDrain verifies that Drain consumes the remainder and returns
// the terminating error, if any.
func TestStreamDrain(t *testing.T) {
	s := manifold.StreamOf(1, 2, 3)
	require.NoError(t, s.Drain())

	boom := errors.New("boom")
	failing := manifold.NewStream(func() (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, failing.Drain(), boom)
}
