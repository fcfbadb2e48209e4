package util

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type header struct {
	A uint8
	B uint16
}

func TestToLEAndReadLE(t *testing.T) {
	data := ToLE(header{A: 1, B: 0x0203})
	require.Equal(t, []byte{1, 3, 2}, data)
	value := ReadLE[header](bytes.NewBuffer(data))
	assert.Equal(t, header{A: 1, B: 0x0203}, value)
	assert.Equal(t, uint8(3), SizeOf[header]())
}

func TestUtf16encode(t *testing.T) {
	assert.Equal(t, []byte{'h', 0, 'i', 0}, Utf16encode("hi"))
}

func TestChunk(t *testing.T) {
	data := make([]byte, 130)
	chunks := Chunk(data, 64)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 64)
	assert.Len(t, chunks[2], 2)
	assert.Equal(t, [][]byte{{}}, Chunk(nil, 64))
}

func TestTryCatchesPanic(t *testing.T) {
	var caught interface{}
	Try(func() {
		Panic("boom")
	}, func(val interface{}) {
		caught = val
	})
	require.NotNil(t, caught)
	assert.Contains(t, caught.(string), "boom")
}

func TestLoggerLevels(t *testing.T) {
	out := new(bytes.Buffer)
	SetLogOutput(out)
	defer SetLogOutput(bytes.NewBuffer(nil))
	SetLogLevel(LogLevelEnabled)
	trace := NewLogger("[TRACE] ", LogLevelTrace)
	enabled := NewLogger("[CAMPAIGN] ", LogLevelEnabled)
	trace.Printf("hidden %d", 1)
	enabled.Printf("shown %d\n\n", 2)
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown 2")
	assert.Contains(t, out.String(), "component=campaign")
	SetLogLevel(LogLevelTrace)
	assert.Equal(t, logrus.TraceLevel, baseLogger.GetLevel())
}

func TestToBEAndReadBE(t *testing.T) {
	data := ToBE(uint32(0x01020304))
	require.Equal(t, []byte{1, 2, 3, 4}, data)
	assert.Equal(t, uint32(0x01020304), ReadBE[uint32](bytes.NewReader(data)))
	assert.Equal(t, uint16(0x0a0b), ReadBE[uint16](bytes.NewReader([]byte{0x0a, 0x0b})))
}
