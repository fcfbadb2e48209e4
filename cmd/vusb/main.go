package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulwarkid/vusb/facedancer"
	"github.com/bulwarkid/vusb/maxusb"
)

var portPath string
var baudRate int
var logFilename string
var delay time.Duration
var verbose bool
var relayPort int
var stableEnumeration int
var stableFuzz int

var className string
var vendorID hexID
var productID hexID
var revision hexID
var diskImage string
var keystrokes string

var fingerprintClass string

var caseName string
var catalogFilename string
var reportFilename string

var rootCmd = &cobra.Command{
	Use:   "vusb",
	Short: "Assess USB hosts with emulated devices",
	Long:  `vusb drives a Facedancer board to emulate USB devices, fuzz host class drivers and fingerprint host operating systems`,
}

func init() {
	thresholds := maxusb.DefaultThresholds()
	rootCmd.PersistentFlags().StringVarP(&portPath, "port", "P", "/dev/ttyUSB0", "Serial device of the Facedancer board")
	rootCmd.PersistentFlags().IntVar(&baudRate, "baud", facedancer.DefaultBaudRate, "Serial baud rate")
	rootCmd.PersistentFlags().StringVar(&logFilename, "log", "", "Log file (stdout when empty)")
	rootCmd.PersistentFlags().DurationVar(&delay, "delay", 2*time.Second, "Delay between iterations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().IntVar(&relayPort, "relay-port", 0, "TCP port answering IN endpoint traffic (0 disables)")
	rootCmd.PersistentFlags().IntVar(&stableEnumeration, "stable-enum", thresholds.Enumeration, "Identical IRQ polls that end an enumeration run")
	rootCmd.PersistentFlags().IntVar(&stableFuzz, "stable-fuzz", thresholds.Fuzz, "Identical IRQ polls that end a fuzz run")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	identifyCommand := &cobra.Command{
		Use:   "identify",
		Short: "Report which device classes the host supports",
		Run:   identify,
	}
	rootCmd.AddCommand(identifyCommand)

	emulateCommand := &cobra.Command{
		Use:   "emulate",
		Short: "Emulate a single device",
		Run:   emulate,
	}
	emulateCommand.Flags().StringVar(&className, "class", "", "Device class to emulate")
	emulateCommand.Flags().Var(&vendorID, "vid", "Vendor ID override (hex)")
	emulateCommand.Flags().Var(&productID, "pid", "Product ID override (hex)")
	emulateCommand.Flags().Var(&revision, "rev", "Device revision override (hex)")
	emulateCommand.Flags().StringVar(&diskImage, "disk-image", "", "Disk image backing mass storage")
	emulateCommand.Flags().StringVar(&keystrokes, "keys", "", "Text typed by the keyboard")
	emulateCommand.MarkFlagRequired("class")
	rootCmd.AddCommand(emulateCommand)

	fuzzCommand := &cobra.Command{
		Use:   "fuzz",
		Short: "Run a fuzz catalog against the host",
		Run:   fuzzCatalog,
	}
	fuzzCommand.Flags().StringVar(&className, "class", "", "Only run cases for this device class")
	fuzzCommand.Flags().StringVar(&caseName, "case", "", "Only run the named case")
	fuzzCommand.Flags().StringVar(&catalogFilename, "catalog", "", "Catalog file (built-in catalog when empty)")
	fuzzCommand.Flags().StringVar(&reportFilename, "report", "", "Write CBOR report records to this file")
	fuzzCommand.Flags().StringVar(&diskImage, "disk-image", "", "Disk image backing mass storage")
	rootCmd.AddCommand(fuzzCommand)

	fuzzOneCommand := &cobra.Command{
		Use:   "fuzz-one <case>",
		Short: "Run a single fuzz case once",
		Args:  cobra.ExactArgs(1),
		Run:   fuzzOne,
	}
	fuzzOneCommand.Flags().StringVar(&catalogFilename, "catalog", "", "Catalog file (built-in catalog when empty)")
	fuzzOneCommand.Flags().StringVar(&reportFilename, "report", "", "Write the CBOR report record to this file")
	fuzzOneCommand.Flags().StringVar(&diskImage, "disk-image", "", "Disk image backing mass storage")
	rootCmd.AddCommand(fuzzOneCommand)

	fingerprintCommand := &cobra.Command{
		Use:   "fingerprint",
		Short: "Guess the host operating system from its enumeration",
		Run:   fingerprintHost,
	}
	fingerprintCommand.Flags().StringVar(&fingerprintClass, "class", "keyboard", "Device class to enumerate as")
	rootCmd.AddCommand(fingerprintCommand)

	catalogCommand := &cobra.Command{
		Use:   "catalog",
		Short: "Manage fuzz catalogs",
	}
	exportCommand := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the built-in catalog as CBOR",
		Args:  cobra.ExactArgs(1),
		Run:   exportCatalog,
	}
	catalogCommand.AddCommand(exportCommand)
	showCommand := &cobra.Command{
		Use:   "show <file>",
		Short: "Print the contents of a CBOR catalog or report",
		Args:  cobra.ExactArgs(1),
		Run:   showCBOR,
	}
	catalogCommand.AddCommand(showCommand)
	rootCmd.AddCommand(catalogCommand)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
