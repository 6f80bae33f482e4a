/*
comm.go Register maps for field I/O. A register is addressed by name; values
cross the package boundary as float64 whatever their width on the wire.
*/

package modbuscomm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRegister is returned when a write names a register not in the map.
	ErrUnknownRegister = errors.New("register name not found in register array")
	// ErrRegisterMap is returned for a register map that cannot be polled.
	ErrRegisterMap = errors.New("invalid register map")
)

// ModbusComm reads and writes named registers.
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
	Write([]Register, map[string]float64) error
}

// DataType is the wire encoding of a register value.
type DataType string

// Data types. Bit is a single coil or discrete input.
const (
	Bit DataType = "bit"
	u16 DataType = "u16"
	u32 DataType = "u32"
	u64 DataType = "u64"
	i16 DataType = "i16"
	i32 DataType = "i32"
	i64 DataType = "i64"
	f32 DataType = "f32"
	f64 DataType = "f64"
)

// words is the number of 16 bit registers the type spans. Bit and unknown
// types span none.
func (t DataType) words() uint16 {
	switch t {
	case u16, i16:
		return 1
	case u32, i32, f32:
		return 2
	case u64, i64, f64:
		return 4
	}
	return 0
}

func (t DataType) valid() bool {
	return t == Bit || t.words() > 0
}

// Access is the register direction as seen from the simulator.
type Access string

// Constants of Access
const (
	ReadOnly  Access = "read-only"
	WriteOnly Access = "write-only"
	ReadWrite Access = "read-write"
)

// Endian is the byte order of a multi register value. Empty means big.
type Endian string

// Constants of Endian
const (
	littleEndian Endian = "little"
	bigEndian    Endian = "big"
)

// Function codes the poller reads with. Any other code reads holding registers.
const (
	ReadCoils          = 1
	ReadDiscreteInputs = 2
	ReadHolding        = 3
	ReadInput          = 4
)

// Register contains the data required to read and write a Modbus register.
type Register struct {
	Name         string   `json:"Name"`
	Address      uint16   `json:"Address"`
	DataType     DataType `json:"DataType"`
	FunctionCode int      `json:"FunctionCode"`
	AccessType   Access   `json:"Access"`
	Endianness   Endian   `json:"Endianness"`
}

// ValidateRegisters rejects empty or duplicate names and unknown data types.
func ValidateRegisters(regs []Register) error {
	seen := make(map[string]bool, len(regs))
	for _, r := range regs {
		if r.Name == "" {
			return fmt.Errorf("%w: register at %d has no name", ErrRegisterMap, r.Address)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate register %s", ErrRegisterMap, r.Name)
		}
		seen[r.Name] = true
		if !r.DataType.valid() {
			return fmt.Errorf("%w: register %s has data type %q", ErrRegisterMap, r.Name, r.DataType)
		}
	}
	return nil
}

// FilterRegisters returns the registers usable in direction a. ReadWrite
// registers match either direction.
func FilterRegisters(r []Register, a Access) []Register {
	filtered := make([]Register, 0)
	for _, reg := range r {
		if reg.AccessType == a || reg.AccessType == ReadWrite {
			filtered = append(filtered, reg)
		}
	}
	return filtered
}

func lookup(registers []Register, name string) (Register, error) {
	for _, register := range registers {
		if register.Name == name {
			return register, nil
		}
	}
	return Register{}, fmt.Errorf("%w: %s", ErrUnknownRegister, name)
}
