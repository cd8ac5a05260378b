// internal/registers/decode.go
package registers

import (
	"encoding/json"
	"math"
	"strconv"
)

// UnknownName is attached to readings whose address is not in the catalog.
const UnknownName = "unknown"

// Value is a decoded register value: either a number or a boolean.
type Value struct {
	isBool bool
	flag   bool
	num    float64
}

func Number(f float64) Value { return Value{num: f} }
func Flag(b bool) Value      { return Value{isBool: true, flag: b} }

func (v Value) IsBool() bool { return v.isBool }

// Float returns the numeric value. Booleans map to 0/1.
func (v Value) Float() float64 {
	if v.isBool {
		if v.flag {
			return 1
		}
		return 0
	}
	return v.num
}

// Bool returns the boolean value. Numbers are true when non-zero.
func (v Value) Bool() bool {
	if v.isBool {
		return v.flag
	}
	return v.num != 0
}

func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.flag)
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return json.Marshal(v.flag)
	}
	return json.Marshal(v.num)
}

// Reading is one decoded register, produced fresh on every read.
type Reading struct {
	Address  uint16 `json:"address"`
	Name     string `json:"name"`
	RawValue uint16 `json:"rawValue"`
	Value    Value  `json:"value"`
	Unit     string `json:"unit,omitempty"`
}

// Decode maps a raw register to its typed value.
// Pure and total: every raw value decodes.
func Decode(raw uint16, rc Config) Value {
	switch rc.DataType {
	case Bool:
		return Flag(raw != 0)
	case Int16:
		return Number(scale(float64(int16(raw)), rc.DecimalPoints))
	default:
		return Number(scale(float64(raw), rc.DecimalPoints))
	}
}

func scale(v float64, decimalPoints uint) float64 {
	if decimalPoints == 0 {
		return v
	}
	return v / math.Pow10(int(decimalPoints))
}

// Parse decodes raw at addr using the catalog.
// Unknown addresses pass the raw value through under UnknownName.
func Parse(c *Catalog, addr uint16, raw uint16) Reading {
	rc, ok := c.Lookup(addr)
	if !ok {
		return Reading{
			Address:  addr,
			Name:     UnknownName,
			RawValue: raw,
			Value:    Number(float64(raw)),
		}
	}
	return Reading{
		Address:  addr,
		Name:     rc.Name,
		RawValue: raw,
		Value:    Decode(raw, rc),
		Unit:     rc.Unit,
	}
}

// ParseBlock decodes a contiguous register block starting at start.
func ParseBlock(c *Catalog, start uint16, raw []uint16) []Reading {
	out := make([]Reading, len(raw))
	for i, v := range raw {
		out[i] = Parse(c, start+uint16(i), v)
	}
	return out
}
