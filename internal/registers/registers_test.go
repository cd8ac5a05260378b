// internal/registers/registers_test.go
package registers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Int16(t *testing.T) {
	cases := []struct {
		raw  uint16
		dp   uint
		want float64
	}{
		{0xFFFF, 0, -1},
		{0x0001, 0, 1},
		{100, 1, 10.0},
		{0x8000, 0, -32768},
		{0xFF9C, 1, -10.0}, // -100
	}

	for _, tc := range cases {
		v := Decode(tc.raw, Config{DataType: Int16, DecimalPoints: tc.dp})
		assert.False(t, v.IsBool())
		assert.Equal(t, tc.want, v.Float(), "raw=0x%04X dp=%d", tc.raw, tc.dp)
	}
}

func TestDecode_UInt16(t *testing.T) {
	assert.Equal(t, float64(0xFFFF), Decode(0xFFFF, Config{}).Float())
	assert.Equal(t, 12.34, Decode(1234, Config{DecimalPoints: 2}).Float())
}

func TestDecode_Bool(t *testing.T) {
	rc := Config{DataType: Bool}

	assert.False(t, Decode(0, rc).Bool())
	assert.True(t, Decode(1, rc).Bool())
	assert.True(t, Decode(37, rc).Bool())
	assert.True(t, Decode(37, rc).IsBool())
}

func TestParse_UnknownPassthrough(t *testing.T) {
	r := Parse(PutterCatalog(), 200, 77)

	assert.Equal(t, UnknownName, r.Name)
	assert.Equal(t, uint16(77), r.RawValue)
	assert.Equal(t, float64(77), r.Value.Float())
	assert.Empty(t, r.Unit)
}

func TestParseBlock_AttachesIdentity(t *testing.T) {
	out := ParseBlock(PutterCatalog(), 2, []uint16{0xFFF6, 655})

	require.Len(t, out, 2)
	assert.Equal(t, "temperature", out[0].Name)
	assert.Equal(t, -1.0, out[0].Value.Float())
	assert.Equal(t, "℃", out[0].Unit)
	assert.Equal(t, "humidity", out[1].Name)
	assert.Equal(t, 65.5, out[1].Value.Float())
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]Config{{Address: 1, Name: "a"}, {Address: 1, Name: "b"}})
	assert.Error(t, err)

	_, err = NewCatalog([]Config{{Address: 1, Name: "a"}, {Address: 2, Name: "a"}})
	assert.Error(t, err)

	_, err = NewCatalog([]Config{{Address: 1}})
	assert.Error(t, err)
}

func TestPutterCatalog_DoorLayout(t *testing.T) {
	c := PutterCatalog()

	for n := 1; n <= DoorCount; n++ {
		base, ok := DoorBaseAddress(n)
		require.True(t, ok)

		rc, ok := c.Lookup(base)
		require.True(t, ok)
		assert.Equal(t, DoorRegister(n, FieldOpenCommand), rc.Name)

		last, ok := c.Lookup(base + DoorBlockSize - 1)
		require.True(t, ok)
		assert.Equal(t, WindowRegister(n, WindowsPerDoor, FieldEndMinute), last.Name)
	}

	_, ok := DoorBaseAddress(0)
	assert.False(t, ok)
	_, ok = DoorBaseAddress(DoorCount + 1)
	assert.False(t, ok)
}

func TestFindByNamePattern(t *testing.T) {
	got := PutterCatalog().FindByNamePattern(FieldTimedEnable)

	require.Len(t, got, DoorCount)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Address, got[i].Address)
	}
	assert.Empty(t, PutterCatalog().FindByNamePattern("no_such_field"))
}

func TestWeightCatalog(t *testing.T) {
	c := WeightCatalog()

	assert.Equal(t, WeightSlots, c.Len())
	addrs := c.Addresses()
	assert.Equal(t, uint16(0), addrs[0])
	assert.Equal(t, uint16(WeightSlots-1), addrs[len(addrs)-1])
}

func TestState_MergeDoesNotMutate(t *testing.T) {
	t0 := time.Unix(100, 0)
	s0 := NewState(map[string]Reading{
		"a": {Name: "a", Value: Number(1)},
	}, t0)

	s1 := s0.Merge(map[string]Reading{
		"a": {Name: "a", Value: Number(2)},
		"b": {Name: "b", Value: Flag(true)},
	}, t0.Add(time.Second))

	v, _ := s0.Float("a")
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1, s0.Len())

	v, _ = s1.Float("a")
	assert.Equal(t, 2.0, v)
	b, ok := s1.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)
	assert.Equal(t, []string{"a", "b"}, s1.Names())
	assert.Equal(t, t0.Add(time.Second), s1.UpdatedAt())
}

func TestValue_JSON(t *testing.T) {
	b, err := json.Marshal(Reading{Name: "x", Value: Flag(true)})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"value":true`)

	b, err = json.Marshal(Reading{Name: "y", Value: Number(1.5)})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"value":1.5`)
}
