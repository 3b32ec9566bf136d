package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLittleEndian(t *testing.T) {
	w := NewWriter()
	w.Int32(1)
	w.String("ab")
	w.Bool(true)

	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 'a', 'b', 1}, w.Bytes())
}

func TestReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Int16(-3)
	w.Uint16(65000)
	w.Int32(-42)
	w.Uint32(4000000000)
	w.Int64(-1 << 40)
	w.Uint64(1 << 63)
	w.Float32(1.5)
	w.Float64(-2.25)
	w.String("héllo")
	w.Blob([]byte{9, 8, 7})
	w.Bool(false)

	r := NewReader(w.Bytes())
	i16, err := r.Int16()
	require.NoError(t, err)
	assert.Equal(t, int16(-3), i16)
	u16, err := r.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(65000), u16)
	i32, err := r.Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i32)
	u32, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000000), u32)
	i64, err := r.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1<<40), i64)
	u64, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<63), u64)
	f32, err := r.Float32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)
	f64, err := r.Float64()
	require.NoError(t, err)
	assert.Equal(t, -2.25, f64)
	s, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)
	b, err := r.Blob()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, b)
	ok, err := r.Bool()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, r.Remaining())
}

func TestReaderErrors(t *testing.T) {
	t.Run("truncated int", func(t *testing.T) {
		_, err := NewReader([]byte{1, 2}).Int32()
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("negative length", func(t *testing.T) {
		_, err := NewReader([]byte{0xff, 0xff, 0xff, 0xff}).String()
		assert.ErrorIs(t, err, ErrNegativeLength)
	})

	t.Run("string longer than buffer", func(t *testing.T) {
		_, err := NewReader([]byte{5, 0, 0, 0, 'a'}).String()
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("invalid bool", func(t *testing.T) {
		_, err := NewReader([]byte{2}).Bool()
		assert.Error(t, err)
	})
}
