// internal/registers/table.go
package registers

import "fmt"

// ---- PUTTER GEOMETRY ----

// DoorCount is the number of compartments on the putter device.
const DoorCount = 4

// WindowsPerDoor is the number of deposit time windows per door.
const WindowsPerDoor = 4

// DoorBlockSize is the number of registers owned by one door.
const DoorBlockSize = 22

// doorBase holds the first register (the open command) of each door block.
var doorBase = [DoorCount]uint16{30, 52, 74, 96}

// Device clock registers, read by the identification probe.
const (
	ClockHourAddress   uint16 = 24
	ClockMinuteAddress uint16 = 25
	ClockSecondAddress uint16 = 26
)

// Door block field names. Register names are "door<N>_<field>".
const (
	FieldOpenCommand = "open_command"
	FieldExtendTime  = "extend_time"
	FieldHoldTime    = "hold_time"
	FieldTimedEnable = "timed_enable"
	FieldFullAlarm   = "full_alarm"
	FieldDoorOpened  = "door_opened"
)

// Window field names. Register names are "door<N>_<field>_<W>".
const (
	FieldStartHour   = "start_hour"
	FieldStartMinute = "start_minute"
	FieldEndHour     = "end_hour"
	FieldEndMinute   = "end_minute"
)

// Block offsets inside a door block.
const (
	offOpenCommand = 0
	offExtendTime  = 1
	offHoldTime    = 2
	offTimedEnable = 3
	offFullAlarm   = 4
	offDoorOpened  = 5
	offWindows     = 6
)

// DoorKey returns the logical key of door n (1-based).
func DoorKey(n int) string { return fmt.Sprintf("door%d", n) }

// DoorBaseAddress returns the open-command address of door n (1-based).
func DoorBaseAddress(n int) (uint16, bool) {
	if n < 1 || n > DoorCount {
		return 0, false
	}
	return doorBase[n-1], true
}

// DoorRegister names a per-door field.
func DoorRegister(n int, field string) string {
	return fmt.Sprintf("door%d_%s", n, field)
}

// WindowRegister names a per-window field.
func WindowRegister(n, window int, field string) string {
	return fmt.Sprintf("door%d_%s_%d", n, field, window)
}

func putterTable() []Config {
	cfgs := []Config{
		{Address: 0, Name: "device_type", ReadOnly: true},
		{Address: 1, Name: "firmware_version", DecimalPoints: 2, ReadOnly: true},
		{Address: 2, Name: "temperature", DataType: Int16, DecimalPoints: 1, Unit: "℃", ReadOnly: true},
		{Address: 3, Name: "humidity", DecimalPoints: 1, Unit: "%", ReadOnly: true},
		{Address: 4, Name: "smoke_alarm", DataType: Bool, ReadOnly: true},
		{Address: 5, Name: "light_enable", DataType: Bool},
		{Address: 6, Name: "fan_enable", DataType: Bool},
		{Address: 7, Name: "disinfect_enable", DataType: Bool},
		{Address: 8, Name: "supply_voltage", DecimalPoints: 1, Unit: "V", ReadOnly: true},

		{Address: 21, Name: "clock_year", ReadOnly: true},
		{Address: 22, Name: "clock_month", ReadOnly: true},
		{Address: 23, Name: "clock_day", ReadOnly: true},
		{Address: ClockHourAddress, Name: "clock_hour", ReadOnly: true},
		{Address: ClockMinuteAddress, Name: "clock_minute", ReadOnly: true},
		{Address: ClockSecondAddress, Name: "clock_second", ReadOnly: true},
	}

	for n := 1; n <= DoorCount; n++ {
		base := doorBase[n-1]
		cfgs = append(cfgs,
			Config{Address: base + offOpenCommand, Name: DoorRegister(n, FieldOpenCommand), DataType: Bool},
			Config{Address: base + offExtendTime, Name: DoorRegister(n, FieldExtendTime), Unit: "s"},
			Config{Address: base + offHoldTime, Name: DoorRegister(n, FieldHoldTime), Unit: "s"},
			Config{Address: base + offTimedEnable, Name: DoorRegister(n, FieldTimedEnable), DataType: Bool},
			Config{Address: base + offFullAlarm, Name: DoorRegister(n, FieldFullAlarm), DataType: Bool, ReadOnly: true},
			Config{Address: base + offDoorOpened, Name: DoorRegister(n, FieldDoorOpened), DataType: Bool, ReadOnly: true},
		)
		for w := 1; w <= WindowsPerDoor; w++ {
			wb := base + offWindows + uint16(w-1)*4
			cfgs = append(cfgs,
				Config{Address: wb, Name: WindowRegister(n, w, FieldStartHour)},
				Config{Address: wb + 1, Name: WindowRegister(n, w, FieldStartMinute)},
				Config{Address: wb + 2, Name: WindowRegister(n, w, FieldEndHour)},
				Config{Address: wb + 3, Name: WindowRegister(n, w, FieldEndMinute)},
			)
		}
	}
	return cfgs
}

// ---- WEIGHT GEOMETRY ----

// WeightSlots is the length of the weight vector uploaded per deposit.
const WeightSlots = 12

// WeightRegister names weight slot i (1-based).
func WeightRegister(i int) string { return fmt.Sprintf("weight_%d", i) }

func weightTable() []Config {
	cfgs := make([]Config, 0, WeightSlots)
	for i := 1; i <= WeightSlots; i++ {
		cfgs = append(cfgs, Config{
			Address:  uint16(i - 1),
			Name:     WeightRegister(i),
			Unit:     "g",
			ReadOnly: true,
		})
	}
	return cfgs
}

var (
	putterCatalog = MustCatalog(putterTable())
	weightCatalog = MustCatalog(weightTable())
)

// PutterCatalog is the register map of the door/actuator device.
func PutterCatalog() *Catalog { return putterCatalog }

// WeightCatalog is the register map of the scale device.
func WeightCatalog() *Catalog { return weightCatalog }
