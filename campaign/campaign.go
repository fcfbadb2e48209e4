// Package campaign sequences runs of emulated devices against a host: fuzz
// catalogs, the identify sweep, single emulation sessions and host
// fingerprinting.
package campaign

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/bulwarkid/vusb/devices"
	"github.com/bulwarkid/vusb/fingerprint"
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/maxusb"
	"github.com/bulwarkid/vusb/relay"
	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

var campaignLogger = util.NewLogger("[CAMPAIGN] ", util.LogLevelEnabled)
var errLogger = util.NewLogger("[ERR] ", util.LogLevelEnabled)

// Link is the board connection a campaign drives. *facedancer.Board
// satisfies it.
type Link interface {
	maxusb.Transport
	Reset() error
	Close() error
}

type Config struct {
	// Delay is slept between iterations.
	Delay      time.Duration
	Thresholds maxusb.Thresholds
	Options    devices.Options
	// Report, when set, receives one CBOR record per iteration.
	Report io.Writer
	// Relay, when set, answers IN endpoint 2 and 3 traffic.
	Relay *relay.Server
}

func DefaultConfig() Config {
	return Config{Delay: 2 * time.Second, Thresholds: maxusb.DefaultThresholds()}
}

type Outcome string

const (
	// OutcomeConfigured means the host got as far as SET_CONFIGURATION.
	OutcomeConfigured Outcome = "configured"
	// OutcomeEnded means the run ended before the host configured the device.
	OutcomeEnded Outcome = "ended"
	// OutcomeNoOp means the override's field was never produced.
	OutcomeNoOp    Outcome = "no-op"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

type Record struct {
	Case     string   `cbor:"case"`
	Class    string   `cbor:"class"`
	Field    string   `cbor:"field,omitempty"`
	Outcome  Outcome  `cbor:"outcome"`
	Requests []string `cbor:"requests"`
	Error    string   `cbor:"error,omitempty"`
}

type Summary struct {
	Total   int
	Failed  int
	Skipped int
	NoOp    int
}

func (summary Summary) String() string {
	return fmt.Sprintf("%d cases: %d failed, %d skipped, %d no-op", summary.Total, summary.Failed, summary.Skipped, summary.NoOp)
}

type Campaign struct {
	link    Link
	config  Config
	report  *cbor.Encoder
	skipped map[devices.Kind]error
}

func New(link Link, config Config) *Campaign {
	campaign := &Campaign{link: link, config: config, skipped: map[devices.Kind]error{}}
	if config.Report != nil {
		campaign.report = cbor.NewEncoder(config.Report)
	}
	return campaign
}

// Session is what one connect/run/disconnect cycle left behind.
type Session struct {
	Instance *devices.Instance
	Recorder *fingerprint.Recorder
	Context  *fuzz.Context
}

// runSession resets the board, builds a fresh device variant and services
// it until the run ends. Panics from malformed traffic are returned as
// errors.
func (campaign *Campaign) runSession(kind devices.Kind, target fuzz.Target, ctx *fuzz.Context) (session *Session, err error) {
	util.Try(func() {
		session, err = campaign.serviceSession(kind, target, ctx)
	}, func(val interface{}) {
		err = fmt.Errorf("run panicked: %v", val)
	})
	return session, err
}

func (campaign *Campaign) serviceSession(kind devices.Kind, target fuzz.Target, ctx *fuzz.Context) (*Session, error) {
	if err := campaign.link.Reset(); err != nil {
		return nil, fmt.Errorf("could not reset board: %w", err)
	}
	controller, err := maxusb.New(campaign.link, campaign.config.Thresholds)
	if err != nil {
		return nil, err
	}
	var phy usb.Phy = controller
	if campaign.config.Relay != nil {
		phy = relay.NewPhy(controller, campaign.config.Relay)
	}
	instance, err := devices.BuildTarget(kind, target, phy, ctx, campaign.config.Options)
	if err != nil {
		return nil, err
	}
	defer instance.Close()
	session := &Session{Instance: instance, Recorder: fingerprint.NewRecorder(), Context: ctx}
	instance.SetObserver(session.Recorder)
	if err := controller.Connect(instance); err != nil {
		return session, err
	}
	if err := controller.ServiceIRQs(ctx.Mode()); err != nil {
		if disconnectErr := controller.Disconnect(); disconnectErr != nil {
			errLogger.Printf("Could not disconnect after failed run: %v", disconnectErr)
		}
		return session, err
	}
	return session, nil
}

func (campaign *Campaign) pause() {
	if campaign.config.Delay > 0 {
		time.Sleep(campaign.config.Delay)
	}
}

func (campaign *Campaign) writeRecord(record Record) {
	if campaign.report == nil {
		return
	}
	if err := campaign.report.Encode(record); err != nil {
		errLogger.Printf("Could not write report record: %v", err)
	}
}

// runCase runs one catalog entry. Failures are recorded, never returned.
func (campaign *Campaign) runCase(c fuzz.Case, mode fuzz.RunMode) Record {
	record := Record{Case: c.Name, Class: c.Target.String(), Field: c.Field}
	fail := func(outcome Outcome, err error) Record {
		record.Outcome = outcome
		record.Error = err.Error()
		return record
	}
	override, err := c.Override()
	if err != nil {
		return fail(OutcomeFailed, err)
	}
	kind, ok := devices.KindFor(c.Target)
	if !ok {
		return fail(OutcomeSkipped, fmt.Errorf("no emulator for class %s", c.Target))
	}
	if err, skipped := campaign.skipped[kind]; skipped {
		return fail(OutcomeSkipped, err)
	}
	ctx := fuzz.NewContext(mode, override)
	session, err := campaign.runSession(kind, c.Target, ctx)
	if session != nil {
		record.Requests = session.Recorder.Trace.Tags()
	}
	var backingErr *devices.BackingStoreError
	if errors.As(err, &backingErr) {
		errLogger.Printf("Skipping %s for the rest of the campaign: %v", kind, err)
		campaign.skipped[kind] = err
		return fail(OutcomeSkipped, err)
	}
	if err != nil {
		errLogger.Printf("Case %s failed: %v", c.Name, err)
		return fail(OutcomeFailed, err)
	}
	switch {
	case ctx.Hits() == 0:
		campaignLogger.Printf("Case %s: %s was never produced by %s", c.Name, c.Field, kind)
		record.Outcome = OutcomeNoOp
	case session.Instance.Configured():
		record.Outcome = OutcomeConfigured
	default:
		record.Outcome = OutcomeEnded
	}
	return record
}

func (summary *Summary) add(record Record) {
	summary.Total++
	switch record.Outcome {
	case OutcomeFailed:
		summary.Failed++
	case OutcomeSkipped:
		summary.Skipped++
	case OutcomeNoOp:
		summary.NoOp++
	case OutcomeConfigured, OutcomeEnded:
	}
}

// Run plays every case of the catalog in order. One case failing never
// stops the rest.
func (campaign *Campaign) Run(catalog fuzz.Catalog) Summary {
	summary := Summary{}
	for i, c := range catalog {
		campaignLogger.Printf("[%d/%d] %s", i+1, len(catalog), c.Name)
		record := campaign.runCase(c, fuzz.RunModeFullFuzz)
		campaign.writeRecord(record)
		summary.add(record)
		if i < len(catalog)-1 {
			campaign.pause()
		}
	}
	campaignLogger.Printf("Campaign finished: %s", summary)
	return summary
}

// RunOne plays a single case and reports its outcome.
func (campaign *Campaign) RunOne(c fuzz.Case) Record {
	record := campaign.runCase(c, fuzz.RunModeFuzzSingleShot)
	campaign.writeRecord(record)
	campaignLogger.Printf("Case %s: %s", c.Name, record.Outcome)
	return record
}

type IdentifyResult struct {
	Target    fuzz.Target
	Kind      devices.Kind
	Supported bool
	Err       error
}

// Identify offers each triple to the host and reports which ones it
// configured.
func (campaign *Campaign) Identify(targets []fuzz.Target) []IdentifyResult {
	results := []IdentifyResult{}
	for i, target := range targets {
		kind, ok := devices.KindFor(target)
		if !ok {
			results = append(results, IdentifyResult{Target: target, Err: fmt.Errorf("no emulator for class %s", target)})
			continue
		}
		result := IdentifyResult{Target: target, Kind: kind}
		session, err := campaign.runSession(kind, target, fuzz.NewContext(fuzz.RunModeIdentify, nil))
		result.Err = err
		if session != nil {
			result.Supported = session.Instance.Configured()
		}
		if result.Supported {
			campaignLogger.Printf("%s (%s) is supported", target, kind)
		} else {
			campaignLogger.Printf("%s (%s) is not supported", target, kind)
		}
		results = append(results, result)
		if i < len(targets)-1 {
			campaign.pause()
		}
	}
	return results
}

// Emulate runs one device until it finishes or the board fails. Requests
// the device cannot answer are stalled.
func (campaign *Campaign) Emulate(kind devices.Kind, target fuzz.Target) (*Session, error) {
	return campaign.runSession(kind, target, fuzz.NewContext(fuzz.RunModeInteractive, nil))
}

// Fingerprint enumerates one device and classifies the host from the
// requests it issued.
func (campaign *Campaign) Fingerprint(kind devices.Kind, signatures []fingerprint.Signature) (fingerprint.Result, error) {
	session, err := campaign.runSession(kind, kind.Target(), fuzz.NewContext(fuzz.RunModeEnumerationOnly, nil))
	if session == nil {
		return fingerprint.Result{}, err
	}
	result := fingerprint.Classify(&session.Recorder.Trace, signatures)
	campaignLogger.Printf("Host fingerprint: %s", result)
	return result, err
}

// ReadReport decodes every record of a report stream.
func ReadReport(r io.Reader) ([]Record, error) {
	decoder := cbor.NewDecoder(r)
	records := []Record{}
	for {
		var record Record
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("could not decode report record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
}
