package can

// SocketCAN flag bits for raw can_id words (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// Frame is the generic classic CAN frame exchanged between backends and the
// wire protocol. ID holds the bare 11- or 29-bit identifier; the width is
// selected by Extended alone, never inferred from the ID magnitude.
// Len is the DLC (0..8); only the first Len bytes of Data are valid.
type Frame struct {
	ID       uint32
	Extended bool
	Remote   bool
	Len      uint8
	Data     [8]byte
}

// RawID folds the identifier and flags into a SocketCAN can_id word.
func (f Frame) RawID() uint32 {
	id := f.ID
	if f.Extended {
		id = id&CAN_EFF_MASK | CAN_EFF_FLAG
	} else {
		id &= CAN_SFF_MASK
	}
	if f.Remote {
		id |= CAN_RTR_FLAG
	}
	return id
}

// SetRawID fills the identifier and flag fields from a SocketCAN can_id word.
func (f *Frame) SetRawID(id uint32) {
	f.Extended = id&CAN_EFF_FLAG != 0
	f.Remote = id&CAN_RTR_FLAG != 0
	if f.Extended {
		f.ID = id & CAN_EFF_MASK
	} else {
		f.ID = id & CAN_SFF_MASK
	}
}
