package modbuscomm

import (
	"encoding/binary"
	"math"
)

// readErrorValue marks a register that failed to read.
const readErrorValue = 0xBEEF

func (e Endian) order() binary.ByteOrder {
	if e == littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// encode packs val into the register's wire format.
func encode(val float64, r Register) []byte {
	b := make([]byte, 2*r.DataType.words())
	order := r.Endianness.order()
	switch r.DataType {
	case u16:
		order.PutUint16(b, uint16(val))
	case i16:
		order.PutUint16(b, uint16(int16(val)))
	case u32:
		order.PutUint32(b, uint32(val))
	case i32:
		order.PutUint32(b, uint32(int32(val)))
	case f32:
		order.PutUint32(b, math.Float32bits(float32(val)))
	case u64:
		order.PutUint64(b, uint64(val))
	case i64:
		order.PutUint64(b, uint64(int64(val)))
	case f64:
		order.PutUint64(b, math.Float64bits(val))
	}
	return b
}

// decode unpacks a register read. Short responses read as readErrorValue.
func decode(b []byte, r Register) float64 {
	if r.DataType == Bit {
		if len(b) < 1 {
			return readErrorValue
		}
		return float64(b[0] & 1)
	}
	if len(b) < int(2*r.DataType.words()) {
		return readErrorValue
	}
	order := r.Endianness.order()
	switch r.DataType {
	case u16:
		return float64(order.Uint16(b))
	case i16:
		return float64(int16(order.Uint16(b)))
	case u32:
		return float64(order.Uint32(b))
	case i32:
		return float64(int32(order.Uint32(b)))
	case f32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case u64:
		return float64(order.Uint64(b))
	case i64:
		return float64(int64(order.Uint64(b)))
	case f64:
		return math.Float64frombits(order.Uint64(b))
	}
	return 0
}

// coil is the single coil write value for val: on for anything nonzero.
func coil(val float64) uint16 {
	if val != 0 {
		return 0xFF00
	}
	return 0x0000
}
