// internal/registers/catalog.go
package registers

import (
	"fmt"
	"sort"
	"strings"
)

// DataType selects how a raw 16-bit register is interpreted.
// The zero value is UInt16.
type DataType uint8

const (
	UInt16 DataType = iota
	Int16
	Bool
)

func (t DataType) String() string {
	switch t {
	case Int16:
		return "int16"
	case Bool:
		return "bool"
	default:
		return "uint16"
	}
}

// Config describes one named register on a device.
// Address is the wire address; it is part of the persisted schema and MUST NOT move.
type Config struct {
	Address       uint16
	Name          string
	DataType      DataType
	DecimalPoints uint
	Unit          string
	ReadOnly      bool
}

// Catalog is the immutable address map of one device kind.
type Catalog struct {
	byAddr  map[uint16]Config
	byName  map[string]Config
	ordered []Config
}

// NewCatalog builds a catalog and rejects duplicate addresses or names.
func NewCatalog(cfgs []Config) (*Catalog, error) {
	c := &Catalog{
		byAddr:  make(map[uint16]Config, len(cfgs)),
		byName:  make(map[string]Config, len(cfgs)),
		ordered: make([]Config, 0, len(cfgs)),
	}

	for _, rc := range cfgs {
		if rc.Name == "" {
			return nil, fmt.Errorf("registers: address %d has no name", rc.Address)
		}
		if prev, ok := c.byAddr[rc.Address]; ok {
			return nil, fmt.Errorf("registers: address %d used by %q and %q", rc.Address, prev.Name, rc.Name)
		}
		if prev, ok := c.byName[rc.Name]; ok {
			return nil, fmt.Errorf("registers: name %q used by addresses %d and %d", rc.Name, prev.Address, rc.Address)
		}
		c.byAddr[rc.Address] = rc
		c.byName[rc.Name] = rc
		c.ordered = append(c.ordered, rc)
	}

	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].Address < c.ordered[j].Address })
	return c, nil
}

// MustCatalog is NewCatalog for static tables.
func MustCatalog(cfgs []Config) *Catalog {
	c, err := NewCatalog(cfgs)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the register at addr. A miss means "unknown register", not an error.
func (c *Catalog) Lookup(addr uint16) (Config, bool) {
	rc, ok := c.byAddr[addr]
	return rc, ok
}

// ByName returns the register with the exact name.
func (c *Catalog) ByName(name string) (Config, bool) {
	rc, ok := c.byName[name]
	return rc, ok
}

// FindByNamePattern returns every register whose name contains substr, in address order.
func (c *Catalog) FindByNamePattern(substr string) []Config {
	var out []Config
	for _, rc := range c.ordered {
		if strings.Contains(rc.Name, substr) {
			out = append(out, rc)
		}
	}
	return out
}

// Addresses returns all catalog addresses ascending.
func (c *Catalog) Addresses() []uint16 {
	out := make([]uint16, len(c.ordered))
	for i, rc := range c.ordered {
		out[i] = rc.Address
	}
	return out
}

func (c *Catalog) Len() int { return len(c.ordered) }
