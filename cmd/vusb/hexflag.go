package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// hexID is a 16-bit flag value written as 0x05ac or 05ac. Zero means unset.
type hexID uint16

var _ pflag.Value = (*hexID)(nil)

func (id *hexID) String() string {
	return fmt.Sprintf("0x%04x", uint16(*id))
}

func (id *hexID) Set(value string) error {
	value = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	parsed, err := strconv.ParseUint(value, 16, 16)
	if err != nil {
		return fmt.Errorf("invalid 16-bit hex value %q", value)
	}
	*id = hexID(parsed)
	return nil
}

func (id *hexID) Type() string {
	return "hex16"
}
