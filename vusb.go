// Package vusb emulates USB devices through a Facedancer board to assess
// how hosts enumerate, drive and fingerprint them.
package vusb

import (
	"io"

	"github.com/bulwarkid/vusb/util"
)

func SetLogLevel(level util.LogLevel) {
	util.SetLogLevel(level)
}

func SetLogOutput(out io.Writer) {
	util.SetLogOutput(out)
}
