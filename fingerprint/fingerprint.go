// Package fingerprint records the order in which a host issues control
// requests during enumeration and matches it against known host stacks.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

var fingerprintLogger = util.NewLogger("[FINGERPRINT] ", util.LogLevelDebug)

const Unknown = "unknown"

// Tag summarises one request as recipient:name[:params]. Descriptor
// fetches carry the descriptor type and the requested length, since hosts
// differ most in how much they ask for.
func Tag(request usb.Request) string {
	prefix := request.Recipient().String() + ":" + request.Name()
	if request.Type() != usb.RequestTypeStandard {
		return prefix
	}
	switch usb.RequestCode(request.BRequest) {
	case usb.RequestGetDescriptor:
		descriptorType, _ := request.DescriptorTypeAndIndex()
		return fmt.Sprintf("%s:%s:%d", prefix, descriptorType, request.WLength)
	case usb.RequestSetConfiguration, usb.RequestSetInterface:
		return fmt.Sprintf("%s:%d", prefix, request.WValue)
	}
	return prefix
}

// Trace is the ordered list of tags seen in one session.
type Trace struct {
	lock sync.Mutex
	tags []string
}

func (trace *Trace) Append(tag string) {
	trace.lock.Lock()
	defer trace.lock.Unlock()
	trace.tags = append(trace.tags, tag)
}

func (trace *Trace) Tags() []string {
	trace.lock.Lock()
	defer trace.lock.Unlock()
	return append([]string{}, trace.tags...)
}

func (trace *Trace) Len() int {
	trace.lock.Lock()
	defer trace.lock.Unlock()
	return len(trace.tags)
}

// Digest is a BLAKE2b-256 hash of the trace, stable across sessions that
// saw the same requests in the same order.
func (trace *Trace) Digest() string {
	sum := blake2b.Sum256([]byte(strings.Join(trace.Tags(), "\n")))
	return hex.EncodeToString(sum[:])
}

// Recorder is a usb.Observer that appends a tag per routed request.
type Recorder struct {
	Trace Trace
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (recorder *Recorder) ObserveRequest(request usb.Request) {
	tag := Tag(request)
	fingerprintLogger.Printf("%s", tag)
	recorder.Trace.Append(tag)
}

// Signature is a known opening sequence of a host stack.
type Signature struct {
	OS   string
	Tags []string
}

func (signature Signature) matches(tags []string) bool {
	if len(signature.Tags) == 0 || len(signature.Tags) > len(tags) {
		return false
	}
	for i, tag := range signature.Tags {
		if tags[i] != tag {
			return false
		}
	}
	return true
}

var defaultSignatures = []Signature{
	{
		OS: "Linux",
		Tags: []string{
			"dev:GET_DESCRIPTOR:dev:64",
			"dev:SET_ADDRESS",
			"dev:GET_DESCRIPTOR:dev:18",
			"dev:GET_DESCRIPTOR:cfg:9",
		},
	},
	{
		OS: "Linux",
		Tags: []string{
			"dev:GET_DESCRIPTOR:dev:64",
			"dev:SET_ADDRESS",
			"dev:GET_DESCRIPTOR:dev:18",
			"dev:GET_DESCRIPTOR:dq:10",
		},
	},
	{
		OS: "Windows",
		Tags: []string{
			"dev:GET_DESCRIPTOR:dev:64",
			"dev:SET_ADDRESS",
			"dev:GET_DESCRIPTOR:dev:18",
			"dev:GET_DESCRIPTOR:cfg:255",
		},
	},
	{
		OS: "Windows",
		Tags: []string{
			"dev:GET_DESCRIPTOR:dev:64",
			"dev:SET_ADDRESS",
			"dev:GET_DESCRIPTOR:dev:18",
			"dev:GET_DESCRIPTOR:cfg:9",
			"dev:GET_DESCRIPTOR:cfg:255",
		},
	},
	{
		OS: "macOS",
		Tags: []string{
			"dev:GET_DESCRIPTOR:dev:8",
			"dev:SET_ADDRESS",
			"dev:GET_DESCRIPTOR:dev:18",
		},
	},
	{
		OS: "FreeBSD",
		Tags: []string{
			"dev:SET_ADDRESS",
			"dev:GET_DESCRIPTOR:dev:8",
			"dev:GET_DESCRIPTOR:dev:18",
		},
	},
}

func DefaultSignatures() []Signature {
	return append([]Signature{}, defaultSignatures...)
}

type Result struct {
	OS string
	// Matched is how many leading tags the winning signature covered.
	Matched int
	Digest  string
	Tags    []string
}

func (result Result) String() string {
	if result.OS == Unknown {
		return fmt.Sprintf("%s (%d requests, digest %s): %s", Unknown, len(result.Tags), result.Digest, strings.Join(result.Tags, ", "))
	}
	return fmt.Sprintf("%s (matched %d of %d requests, digest %s)", result.OS, result.Matched, len(result.Tags), result.Digest)
}

// Classify picks the longest signature that is a prefix of the trace.
func Classify(trace *Trace, signatures []Signature) Result {
	tags := trace.Tags()
	result := Result{OS: Unknown, Digest: trace.Digest(), Tags: tags}
	for _, signature := range signatures {
		if signature.matches(tags) && len(signature.Tags) > result.Matched {
			result.OS = signature.OS
			result.Matched = len(signature.Tags)
		}
	}
	fingerprintLogger.Printf("Classified %d requests as %s", len(tags), result.OS)
	return result
}
