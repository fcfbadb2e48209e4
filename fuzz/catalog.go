package fuzz

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Target is an interface class triple a catalog entry is run against.
type Target struct {
	Class    uint8 `cbor:"class"`
	Subclass uint8 `cbor:"subclass"`
	Protocol uint8 `cbor:"protocol"`
}

func (target Target) String() string {
	return fmt.Sprintf("%02x:%02x:%02x", target.Class, target.Subclass, target.Protocol)
}

// Case is one catalog entry as stored on disk. The field is kept by name so
// files survive reordering of the Field constants.
type Case struct {
	Name   string `cbor:"name"`
	Target Target `cbor:"target"`
	Field  string `cbor:"field"`
	Value  []byte `cbor:"value"`
}

// Override resolves the case's field name against the closed field set.
func (c Case) Override() (*Override, error) {
	field, err := ParseField(c.Name, c.Field)
	if err != nil {
		return nil, err
	}
	return &Override{CaseName: c.Name, Field: field, Value: c.Value}, nil
}

type Catalog []Case

type catalogFile struct {
	Version int    `cbor:"version"`
	Cases   []Case `cbor:"cases"`
}

const catalogVersion = 1

// LoadCatalog decodes a CBOR catalog and validates every field name.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var file catalogFile
	if err := cbor.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("could not decode catalog: %w", err)
	}
	if file.Version != catalogVersion {
		return nil, fmt.Errorf("unsupported catalog version %d", file.Version)
	}
	catalog := Catalog(file.Cases)
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (catalog Catalog) Save(w io.Writer) error {
	data, err := cbor.Marshal(catalogFile{Version: catalogVersion, Cases: catalog})
	if err != nil {
		return fmt.Errorf("could not encode catalog: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func (catalog Catalog) Validate() error {
	names := make(map[string]bool, len(catalog))
	for _, c := range catalog {
		if _, err := ParseField(c.Name, c.Field); err != nil {
			return err
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate fuzz case %q", c.Name)
		}
		names[c.Name] = true
	}
	return nil
}

func (catalog Catalog) Find(name string) (Case, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c, true
		}
	}
	return Case{}, false
}

// Filter keeps the cases whose target class matches class.
func (catalog Catalog) Filter(class uint8) Catalog {
	filtered := Catalog{}
	for _, c := range catalog {
		if c.Target.Class == class {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func interestingValues(w width) [][]byte {
	switch w {
	case width8:
		return [][]byte{{0x00}, {0x01}, {0x7f}, {0x80}, {0xff}}
	case width16:
		return [][]byte{{0x00, 0x00}, {0x01, 0x00}, {0xff, 0x7f}, {0x00, 0x80}, {0xff, 0xff}}
	case width24:
		return [][]byte{{0x00, 0x00, 0x00}, {0xff, 0xff, 0x7f}, {0xff, 0xff, 0xff}}
	case width32:
		return [][]byte{{0x00, 0x00, 0x00, 0x00}, {0xff, 0xff, 0xff, 0x7f}, {0x00, 0x00, 0x00, 0x80}, {0xff, 0xff, 0xff, 0xff}}
	case width64:
		return [][]byte{make([]byte, 8), bytes.Repeat([]byte{0xff}, 8)}
	case widthBytes:
		return [][]byte{
			{},
			bytes.Repeat([]byte{'A'}, 255),
			bytes.Repeat([]byte("%n"), 32),
			bytes.Repeat([]byte{0xff}, 1024),
		}
	}
	return nil
}

// Generate builds the built-in catalog: for each target, every
// enumeration field and every field owned by the target's class, each with
// its width's boundary values.
func Generate(targets []Target) Catalog {
	catalog := Catalog{}
	for _, target := range targets {
		for _, field := range Fields() {
			owner := field.Owner()
			if owner != ownerEnumeration && owner != target.Class {
				continue
			}
			for i, value := range interestingValues(fieldSpecs[field].width) {
				catalog = append(catalog, Case{
					Name:   fmt.Sprintf("%02x%02x%02x_%s_%d", target.Class, target.Subclass, target.Protocol, field, i),
					Target: target,
					Field:  field.String(),
					Value:  value,
				})
			}
		}
	}
	return catalog
}
