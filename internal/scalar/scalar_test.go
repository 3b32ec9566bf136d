package scalar

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/wire"
)

type color int32

type mood string

type enumTable map[string]reflect.Type

func (e enumTable) EnumName(rt reflect.Type) (string, bool) {
	for name, t := range e {
		if t == rt {
			return name, true
		}
	}
	return "", false
}

func (e enumTable) EnumType(name string) (reflect.Type, bool) {
	rt, ok := e[name]
	return rt, ok
}

var testEnums = enumTable{
	"Color": reflect.TypeOf(color(0)),
	"Mood":  reflect.TypeOf(mood("")),
}

func TestTypeOf(t *testing.T) {
	age := int32(3)
	tests := []struct {
		name string
		v    any
		want Type
	}{
		{"nil", nil, Null},
		{"bool", true, Bool},
		{"int", 5, Int64},
		{"int32", int32(5), Int32},
		{"uint8", uint8(5), Uint8},
		{"float32", float32(1), Float32},
		{"string", "x", String},
		{"time", time.Now(), DateTime},
		{"duration", time.Second, Duration},
		{"uuid", uuid.New(), UUID},
		{"bytes", []byte{1}, Bytes},
		{"enum", color(2), Enum},
		{"string enum", mood("calm"), Enum},
		{"pointer", &age, Int32.Nullable()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TypeOf(tt.v)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := TypeOf(struct{}{})
	assert.False(t, ok)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "int32", Int32.String())
	assert.Equal(t, "string?", String.Nullable().String())
	assert.Equal(t, "type(99)", Type(99).String())

	parsed, err := ParseType("datetime?")
	require.NoError(t, err)
	assert.Equal(t, DateTime.Nullable(), parsed)

	_, err = ParseType("decimal")
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestConvert(t *testing.T) {
	id := uuid.MustParse("0190a0b5-5a4e-7c3d-8f00-000000000001")
	tests := []struct {
		name string
		v    any
		to   Type
		want any
	}{
		{"int to int32", 30, Int32, int32(30)},
		{"int to int8", -128, Int8, int8(-128)},
		{"uint to int16", uint64(7), Int16, int16(7)},
		{"integral float to int", 4.0, Int64, int64(4)},
		{"int to float64", 3, Float64, 3.0},
		{"float64 to float32", 1.5, Float32, float32(1.5)},
		{"string to uuid", id.String(), UUID, id},
		{"string to datetime", "2024-01-02T03:04:05Z", DateTime, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"string to duration", "1m", Duration, time.Minute},
		{"int to duration", 5, Duration, time.Duration(5)},
		{"nil to nullable", nil, Int32.Nullable(), nil},
		{"pointer", ptr(int64(9)), Int32, int32(9)},
		{"enum to enum", color(1), Enum, color(1)},
		{"enum to underlying", color(2), Int32, int32(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.v, tt.to)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %#v got %#v", tt.want, got)
		})
	}
}

func TestConvertRejects(t *testing.T) {
	tests := []struct {
		name string
		v    any
		to   Type
	}{
		{"overflow int8", 300, Int8},
		{"negative to unsigned", -1, Uint32},
		{"fractional float", 1.5, Int32},
		{"string to int", "12", Int32},
		{"nil to non-nullable", nil, String},
		{"bool to string", true, String},
		{"bad uuid", "nope", UUID},
		{"huge to float32", 1e300, Float32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.v, tt.to)
			assert.ErrorIs(t, err, ErrConversion)
		})
	}
}

func TestConvertEnum(t *testing.T) {
	got, err := ConvertEnum(2, reflect.TypeOf(color(0)))
	require.NoError(t, err)
	assert.Equal(t, color(2), got)

	got, err = ConvertEnum("happy", reflect.TypeOf(mood("")))
	require.NoError(t, err)
	assert.Equal(t, mood("happy"), got)

	_, err = ConvertEnum(1.5, reflect.TypeOf(color(0)))
	assert.ErrorIs(t, err, ErrConversion)
}

func TestWriteReadRoundTrip(t *testing.T) {
	when := time.Date(2025, 6, 1, 12, 0, 0, 123, time.UTC)
	tests := []struct {
		name string
		t    Type
		v    any
	}{
		{"null", Null, nil},
		{"bool", Bool, true},
		{"int8", Int8, int8(-5)},
		{"uint8", Uint8, uint8(200)},
		{"int16", Int16, int16(-300)},
		{"uint16", Uint16, uint16(60000)},
		{"int32", Int32, int32(30)},
		{"uint32", Uint32, uint32(1 << 31)},
		{"int64", Int64, int64(-1 << 50)},
		{"uint64", Uint64, uint64(1 << 63)},
		{"float32", Float32, float32(2.5)},
		{"float64", Float64, 3.25},
		{"string", String, "Ada"},
		{"datetime", DateTime, when},
		{"duration", Duration, 90 * time.Second},
		{"uuid", UUID, uuid.MustParse("0190a0b5-5a4e-7c3d-8f00-00000000abcd")},
		{"bytes", Bytes, []byte{0, 1, 2}},
		{"nullable with value", Int32.Nullable(), int32(7)},
		{"nullable without value", String.Nullable(), nil},
		{"enum", Enum, color(3)},
		{"string enum", Enum, mood("calm")},
		{"nullable enum", Enum.Nullable(), color(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := wire.NewWriter()
			require.NoError(t, Write(w, tt.t, tt.v, testEnums))

			r := wire.NewReader(w.Bytes())
			gotType, gotValue, err := Read(r, testEnums)
			require.NoError(t, err)
			assert.Equal(t, tt.t, gotType)
			assert.True(t, Equal(tt.v, gotValue), "want %#v got %#v", tt.v, gotValue)
			assert.Zero(t, r.Remaining())
		})
	}
}

func TestWireLayout(t *testing.T) {
	w := wire.NewWriter()
	require.NoError(t, Write(w, Int32.Nullable(), int32(1), nil))
	assert.Equal(t, []byte{0x46, 0, 0, 0, 1, 1, 0, 0, 0}, w.Bytes())

	w = wire.NewWriter()
	require.NoError(t, Write(w, Enum, color(2), testEnums))
	assert.Equal(t, []byte{
		32, 0, 0, 0,
		5, 0, 0, 0, 'C', 'o', 'l', 'o', 'r',
		6, 0, 0, 0,
		2, 0, 0, 0,
	}, w.Bytes())
}

func TestReadErrors(t *testing.T) {
	t.Run("unknown tag", func(t *testing.T) {
		_, _, err := Read(wire.NewReader([]byte{99, 0, 0, 0}), nil)
		assert.ErrorIs(t, err, ErrUnknownTag)
	})

	t.Run("unknown enum", func(t *testing.T) {
		w := wire.NewWriter()
		require.NoError(t, Write(w, Enum, color(2), testEnums))
		_, _, err := Read(wire.NewReader(w.Bytes()), enumTable{})
		assert.ErrorIs(t, err, ErrUnknownEnum)
	})

	t.Run("truncated value", func(t *testing.T) {
		_, _, err := Read(wire.NewReader([]byte{6, 0, 0, 0, 1}), nil)
		assert.ErrorIs(t, err, wire.ErrTruncated)
	})

	t.Run("write nil non-nullable", func(t *testing.T) {
		err := Write(wire.NewWriter(), Int32, nil, nil)
		assert.ErrorIs(t, err, ErrConversion)
	})

	t.Run("enum with mismatched underlying type", func(t *testing.T) {
		w := wire.NewWriter()
		w.Int32(int32(Enum))
		w.String("Color")
		w.Int32(int32(String))
		w.String("red")
		_, _, err := Read(wire.NewReader(w.Bytes()), testEnums)
		assert.ErrorIs(t, err, ErrUnknownEnum)
	})

	t.Run("enum with wider underlying type", func(t *testing.T) {
		w := wire.NewWriter()
		w.Int32(int32(Enum))
		w.String("Color")
		w.Int32(int32(Int64))
		w.Int64(2)
		_, _, err := Read(wire.NewReader(w.Bytes()), testEnums)
		assert.ErrorIs(t, err, ErrUnknownEnum)
	})
}

func TestDateTimeRange(t *testing.T) {
	for _, ts := range []time.Time{
		{},
		time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		t.Run(ts.Format("2006"), func(t *testing.T) {
			err := Write(wire.NewWriter(), DateTime, ts, nil)
			assert.ErrorIs(t, err, ErrConversion)
		})
	}

	for _, ts := range []time.Time{
		time.Date(1700, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2250, 6, 1, 12, 0, 0, 5, time.UTC),
	} {
		t.Run(ts.Format("2006"), func(t *testing.T) {
			w := wire.NewWriter()
			require.NoError(t, Write(w, DateTime, ts, nil))
			_, got, err := Read(wire.NewReader(w.Bytes()), nil)
			require.NoError(t, err)
			assert.True(t, ts.Equal(got.(time.Time)), "want %s got %s", ts, got)
		})
	}
}

func TestCompare(t *testing.T) {
	c, ok := Compare(int32(1), int32(2))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = Compare(true, false)
	assert.False(t, ok)

	c, ok = Compare(nil, int32(1))
	require.True(t, ok)
	assert.Equal(t, -1, c)
}

func ptr[T any](v T) *T {
	return &v
}
