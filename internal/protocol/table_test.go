package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteShortString(&buf, "hello"))

	s, err := ReadShortString(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestShortStringRejectsOverlongValue(t *testing.T) {
	var buf bytes.Buffer
	long := string(make([]byte, 256))
	assert.Error(t, WriteShortString(&buf, long))
}

func TestLongStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLongString(&buf, []byte("a longer value")))

	data, err := ReadLongString(&buf)
	require.NoError(t, err)
	assert.Equal(t, "a longer value", string(data))
}

func TestTableRoundTrip(t *testing.T) {
	original := Table{
		"flag":     true,
		"count":    int32(42),
		"big":      int64(1 << 40),
		"ratio":    float64(0.25),
		"name":     "widget",
		"ts":       time.Unix(1700000000, 0),
		"absent":   nil,
		"nested":   Table{"inner": "value"},
		"sequence": []interface{}{int32(1), "two"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, original))

	decoded, err := ReadTable(&buf)
	require.NoError(t, err)

	assert.Equal(t, true, decoded["flag"])
	assert.Equal(t, int32(42), decoded["count"])
	assert.Equal(t, int64(1<<40), decoded["big"])
	assert.Equal(t, float64(0.25), decoded["ratio"])
	assert.Equal(t, "widget", decoded["name"])
	assert.Equal(t, time.Unix(1700000000, 0), decoded["ts"])
	assert.Nil(t, decoded["absent"])

	nested, ok := decoded["nested"].(Table)
	require.True(t, ok)
	assert.Equal(t, "value", nested["inner"])

	seq, ok := decoded["sequence"].([]interface{})
	require.True(t, ok)
	require.Len(t, seq, 2)
	assert.Equal(t, int32(1), seq[0])
	assert.Equal(t, "two", seq[1])
}

func TestEmptyTableEncodesToZeroLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, nil))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, buf.Bytes())

	decoded, err := ReadTable(&buf)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestTablePlainIntTravelsAsInt32(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, Table{"n": 7}))

	decoded, err := ReadTable(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(7), decoded["n"])
}

func TestTableRejectsUnsupportedValueType(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteTable(&buf, Table{"ch": make(chan int)}))
}

func TestReadTableRejectsUnknownFieldType(t *testing.T) {
	var buf bytes.Buffer
	// length 3: key "a" + bogus indicator 'Z'
	buf.Write([]byte{0x00, 0x00, 0x00, 0x03, 0x01, 'a', 'Z'})

	_, err := ReadTable(&buf)
	assert.Error(t, err)
}

func TestKeyCombinesClassAndMethod(t *testing.T) {
	assert.Equal(t, uint32(0x0014000A), Key(ClassChannel, MethodChannelOpen))
	assert.NotEqual(t, Key(ClassChannel, MethodChannelOpen), Key(ClassBasic, MethodChannelOpen))
}
