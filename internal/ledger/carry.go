package ledger

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Carry is the provisional-delta carry file shared by the script and
// history targets: for each, the number of lines appended since that
// target's ledger was last reconciled. The append side is its sole
// writer; the retraction side only reads and clears its slot.
type Carry struct {
	Script  int
	History int
}

const carrySize = 16 // two little-endian int64s

// ReadCarry loads the carry file. A missing file means no pending lines.
func ReadCarry(path string) (Carry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Carry{}, nil
		}
		return Carry{}, fmt.Errorf("%w: read carry %s: %v", ErrLedger, path, err)
	}
	if len(data) != carrySize {
		return Carry{}, fmt.Errorf("%w: carry %s: bad size %d", ErrLedger, path, len(data))
	}
	return Carry{
		Script:  int(int64(binary.LittleEndian.Uint64(data[0:8]))),
		History: int(int64(binary.LittleEndian.Uint64(data[8:16]))),
	}, nil
}

// WriteCarry persists the carry file.
func WriteCarry(path string, c Carry) error {
	buf := make([]byte, carrySize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(int64(c.Script)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(c.History)))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("%w: write carry %s: %v", ErrLedger, path, err)
	}
	return nil
}

// ClearCarry removes the carry file entirely. Used once both slots have
// been reconciled; clearing a single slot is a WriteCarry with that slot
// zeroed.
func ClearCarry(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: clear carry %s: %v", ErrLedger, path, err)
	}
	return nil
}
