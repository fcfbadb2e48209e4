package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/bulwarkid/vusb"
	"github.com/bulwarkid/vusb/campaign"
	"github.com/bulwarkid/vusb/devices"
	"github.com/bulwarkid/vusb/facedancer"
	"github.com/bulwarkid/vusb/fingerprint"
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/maxusb"
	"github.com/bulwarkid/vusb/relay"
	"github.com/bulwarkid/vusb/util"
)

func checkErr(err error, message string) {
	if err != nil {
		panic(fmt.Sprintf("Error: %s - %s", err, message))
	}
}

func setupLogging() {
	if logFilename != "" {
		out, err := os.OpenFile(logFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		checkErr(err, "Could not open log file")
		vusb.SetLogOutput(out)
	} else {
		vusb.SetLogOutput(os.Stdout)
	}
	if verbose {
		vusb.SetLogLevel(util.LogLevelTrace)
	} else {
		vusb.SetLogLevel(util.LogLevelEnabled)
	}
}

// openCampaign opens the board and builds a campaign from the global flags.
// The returned function releases the board and the relay.
func openCampaign(options devices.Options, report *os.File) (*campaign.Campaign, func()) {
	setupLogging()
	board, err := facedancer.OpenBoard(portPath, baudRate)
	checkErr(err, "Could not open board")
	config := campaign.Config{
		Delay:      delay,
		Thresholds: maxusb.Thresholds{Enumeration: stableEnumeration, Fuzz: stableFuzz},
		Options:    options,
	}
	if report != nil {
		config.Report = report
	}
	var server *relay.Server
	if relayPort != 0 {
		server, err = relay.Listen(fmt.Sprintf(":%d", relayPort))
		checkErr(err, "Could not start relay")
		go server.Serve()
		config.Relay = server
	}
	return campaign.New(board, config), func() {
		if server != nil {
			server.Close()
		}
		board.Close()
	}
}

func openReport() *os.File {
	if reportFilename == "" {
		return nil
	}
	report, err := os.Create(reportFilename)
	checkErr(err, "Could not create report file")
	return report
}

func loadCatalog() fuzz.Catalog {
	if catalogFilename == "" {
		return fuzz.Generate(devices.PrimaryTargets())
	}
	file, err := os.Open(catalogFilename)
	checkErr(err, "Could not open catalog")
	defer file.Close()
	catalog, err := fuzz.LoadCatalog(file)
	checkErr(err, "Could not load catalog")
	return catalog
}

func identify(cmd *cobra.Command, args []string) {
	run, release := openCampaign(devices.Options{}, nil)
	defer release()
	for _, result := range run.Identify(devices.Targets()) {
		switch {
		case result.Err != nil:
			cmd.Printf("%s  %-12s error: %v\n", result.Target, result.Kind, result.Err)
		case result.Supported:
			cmd.Printf("%s  %-12s supported\n", result.Target, result.Kind)
		default:
			cmd.Printf("%s  %-12s not supported\n", result.Target, result.Kind)
		}
	}
}

func emulate(cmd *cobra.Command, args []string) {
	kind, err := devices.ParseKind(className)
	checkErr(err, "Could not select device class")
	options := devices.Options{
		VendorID:   uint16(vendorID),
		ProductID:  uint16(productID),
		Revision:   uint16(revision),
		DiskImage:  diskImage,
		Keystrokes: keystrokes,
	}
	run, release := openCampaign(options, nil)
	defer release()
	session, err := run.Emulate(kind, kind.Target())
	checkErr(err, "Emulation ended with an error")
	cmd.Printf("Emulation of %s ended after %d requests\n", kind, session.Recorder.Trace.Len())
}

func fuzzCatalog(cmd *cobra.Command, args []string) {
	catalog := loadCatalog()
	if className != "" {
		kind, err := devices.ParseKind(className)
		checkErr(err, "Could not select device class")
		catalog = catalog.Filter(kind.Target().Class)
	}
	if caseName != "" {
		c, ok := catalog.Find(caseName)
		if !ok {
			cmd.PrintErrf("No case named %q\n", caseName)
			return
		}
		catalog = fuzz.Catalog{c}
	}
	report := openReport()
	if report != nil {
		defer report.Close()
	}
	run, release := openCampaign(devices.Options{DiskImage: diskImage}, report)
	defer release()
	summary := run.Run(catalog)
	cmd.Println(summary.String())
}

func fuzzOne(cmd *cobra.Command, args []string) {
	c, ok := loadCatalog().Find(args[0])
	if !ok {
		cmd.PrintErrf("No case named %q\n", args[0])
		return
	}
	report := openReport()
	if report != nil {
		defer report.Close()
	}
	run, release := openCampaign(devices.Options{DiskImage: diskImage}, report)
	defer release()
	record := run.RunOne(c)
	cmd.Printf("%s: %s %s\n", record.Case, record.Outcome, record.Error)
}

func fingerprintHost(cmd *cobra.Command, args []string) {
	kind, err := devices.ParseKind(fingerprintClass)
	checkErr(err, "Could not select device class")
	run, release := openCampaign(devices.Options{}, nil)
	defer release()
	result, err := run.Fingerprint(kind, fingerprint.DefaultSignatures())
	checkErr(err, "Fingerprint run failed")
	cmd.Println(result.String())
}

func exportCatalog(cmd *cobra.Command, args []string) {
	catalog := fuzz.Generate(devices.PrimaryTargets())
	file, err := os.Create(args[0])
	checkErr(err, "Could not create catalog file")
	defer file.Close()
	checkErr(catalog.Save(file), "Could not write catalog")
	cmd.Printf("Wrote %d cases to %s\n", len(catalog), args[0])
}

// showCBOR prints any CBOR file: catalogs, campaign reports or anything else.
func showCBOR(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	checkErr(err, "Could not read file")
	decoder := cbor.NewDecoder(bytes.NewReader(data))
	for decoder.NumBytesRead() < len(data) {
		var item interface{}
		checkErr(decoder.Decode(&item), "Could not decode CBOR")
		cmd.Printf("%#v\n", item)
	}
}
