package fuzz

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bulwarkid/vusb/util"
)

var fuzzLogger = util.NewLogger("[FUZZ] ", util.LogLevelDebug)

type RunMode uint8

const (
	RunModeIdentify RunMode = iota
	RunModeEnumerationOnly
	RunModeFullFuzz
	RunModeFuzzSingleShot
	RunModeInteractive
)

var runModeDescriptions = map[RunMode]string{
	RunModeIdentify:        "identify",
	RunModeEnumerationOnly: "enumeration",
	RunModeFullFuzz:        "fuzz",
	RunModeFuzzSingleShot:  "fuzz-one",
	RunModeInteractive:     "interactive",
}

func (mode RunMode) String() string {
	if desc, ok := runModeDescriptions[mode]; ok {
		return desc
	}
	return fmt.Sprintf("RunMode(%d)", uint8(mode))
}

// Fuzzing reports whether the mode installs catalog overrides.
func (mode RunMode) Fuzzing() bool {
	switch mode {
	case RunModeFullFuzz, RunModeFuzzSingleShot:
		return true
	case RunModeIdentify, RunModeEnumerationOnly, RunModeInteractive:
		return false
	}
	return false
}

// StallsUnroutable reports whether a request nothing can route is answered
// with an EP0 stall instead of ending the run.
func (mode RunMode) StallsUnroutable() bool {
	switch mode {
	case RunModeInteractive:
		return true
	case RunModeIdentify, RunModeEnumerationOnly, RunModeFullFuzz, RunModeFuzzSingleShot:
		return false
	}
	return false
}

// Override replaces the bytes of one field every time it is produced.
type Override struct {
	CaseName string
	Field    Field
	Value    []byte
}

func (override Override) String() string {
	return fmt.Sprintf("%s: %s=%x", override.CaseName, override.Field, override.Value)
}

// Context is the per-run fuzz state shared by every emulator of a device.
// A nil *Context behaves as a run without an override.
type Context struct {
	mode     RunMode
	override *Override
	lock     sync.Mutex
	hits     int
}

func NewContext(mode RunMode, override *Override) *Context {
	return &Context{mode: mode, override: override}
}

func (ctx *Context) Mode() RunMode {
	if ctx == nil {
		return RunModeEnumerationOnly
	}
	return ctx.mode
}

func (ctx *Context) Override() *Override {
	if ctx == nil {
		return nil
	}
	return ctx.override
}

// Hits returns how many times the override was substituted.
func (ctx *Context) Hits() int {
	if ctx == nil {
		return 0
	}
	ctx.lock.Lock()
	defer ctx.lock.Unlock()
	return ctx.hits
}

// Lookup returns the replacement bytes when field is the override target.
func (ctx *Context) Lookup(field Field) ([]byte, bool) {
	if ctx == nil || ctx.override == nil || ctx.override.Field != field {
		return nil, false
	}
	ctx.lock.Lock()
	ctx.hits++
	first := ctx.hits == 1
	ctx.lock.Unlock()
	if first {
		fuzzLogger.Printf("Applying override %s", ctx.override)
	}
	return ctx.override.Value, true
}

func (ctx *Context) U8(field Field, value uint8) []byte {
	return ctx.Bytes(field, []byte{value})
}

func (ctx *Context) U16(field Field, value uint16) []byte {
	return ctx.Bytes(field, util.ToLE(value))
}

func (ctx *Context) U16BE(field Field, value uint16) []byte {
	return ctx.Bytes(field, util.ToBE(value))
}

// U24BE writes the low three bytes of value, big endian.
func (ctx *Context) U24BE(field Field, value uint32) []byte {
	return ctx.Bytes(field, []byte{byte(value >> 16), byte(value >> 8), byte(value)})
}

// U24 writes the low three bytes of value, little endian.
func (ctx *Context) U24(field Field, value uint32) []byte {
	return ctx.Bytes(field, []byte{byte(value), byte(value >> 8), byte(value >> 16)})
}

func (ctx *Context) U32(field Field, value uint32) []byte {
	return ctx.Bytes(field, util.ToLE(value))
}

func (ctx *Context) U32BE(field Field, value uint32) []byte {
	return ctx.Bytes(field, util.ToBE(value))
}

func (ctx *Context) U64(field Field, value uint64) []byte {
	return ctx.Bytes(field, util.ToLE(value))
}

// Bytes returns the override for field if it is the target, value otherwise.
// The returned slice is never aliased with value.
func (ctx *Context) Bytes(field Field, value []byte) []byte {
	if replacement, ok := ctx.Lookup(field); ok {
		return append([]byte{}, replacement...)
	}
	return append([]byte{}, value...)
}

// Writer builds a response field by field, applying the context's override.
type Writer struct {
	ctx *Context
	buf bytes.Buffer
}

func NewWriter(ctx *Context) *Writer {
	return &Writer{ctx: ctx}
}

func (writer *Writer) U8(field Field, value uint8) *Writer {
	writer.buf.Write(writer.ctx.U8(field, value))
	return writer
}

func (writer *Writer) U16(field Field, value uint16) *Writer {
	writer.buf.Write(writer.ctx.U16(field, value))
	return writer
}

func (writer *Writer) U16BE(field Field, value uint16) *Writer {
	writer.buf.Write(writer.ctx.U16BE(field, value))
	return writer
}

func (writer *Writer) U24(field Field, value uint32) *Writer {
	writer.buf.Write(writer.ctx.U24(field, value))
	return writer
}

func (writer *Writer) U24BE(field Field, value uint32) *Writer {
	writer.buf.Write(writer.ctx.U24BE(field, value))
	return writer
}

func (writer *Writer) U32(field Field, value uint32) *Writer {
	writer.buf.Write(writer.ctx.U32(field, value))
	return writer
}

func (writer *Writer) U32BE(field Field, value uint32) *Writer {
	writer.buf.Write(writer.ctx.U32BE(field, value))
	return writer
}

func (writer *Writer) U64(field Field, value uint64) *Writer {
	writer.buf.Write(writer.ctx.U64(field, value))
	return writer
}

func (writer *Writer) Field(field Field, value []byte) *Writer {
	writer.buf.Write(writer.ctx.Bytes(field, value))
	return writer
}

// Raw appends bytes that no override can target.
func (writer *Writer) Raw(value []byte) *Writer {
	writer.buf.Write(value)
	return writer
}

func (writer *Writer) Len() int {
	return writer.buf.Len()
}

func (writer *Writer) Bytes() []byte {
	return writer.buf.Bytes()
}
