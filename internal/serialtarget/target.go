// Package serialtarget adapts the one-byte-opcode serial protocol the
// teacher (psdebug.go) spoke directly to a PlayStation debug stub into
// an rsp.Target, so the same board-talking wire format sits behind the
// generic dispatcher instead of being special-cased in the packet
// handler (SPEC_FULL.md §4.J).
package serialtarget

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/rvdbg/gdbstub/rsp"
)

const pcReg = 32

// sentinel bytes the board appends to mark the end of a reply,
// grounded on the teacher's reader.ReadString('+')/ReadString('%')
// framing.
const (
	replySentinel  = '+'
	resumeSentinel = '%'
)

// Target talks to real hardware over a go.bug.st/serial port using a
// fixed single-byte-opcode protocol: one ASCII opcode letter, then
// fixed-width hex arguments, then a reply terminated by a sentinel
// byte.
type Target struct {
	port    serial.Port
	r       *bufio.Reader
	created time.Time
}

// Open opens device at 115200-8-N-1, matching the teacher's serial.Mode.
func Open(device string) (*Target, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialtarget: open %s: %w", device, err)
	}
	return &Target{port: port, r: bufio.NewReader(port), created: time.Now()}, nil
}

func (t *Target) writeOpcode(opcode byte, args ...string) error {
	if _, err := t.port.Write([]byte{opcode}); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := t.port.Write([]byte(a)); err != nil {
			return err
		}
	}
	return nil
}

func (t *Target) readUntil(sentinel byte) (string, error) {
	s, err := t.r.ReadString(sentinel)
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func hex8(v uint32) string {
	return fmt.Sprintf("%08x", v)
}

// Resume implements rsp.Target. timeout is not honored over the wire;
// the board is trusted to always eventually hit a stopping condition
// or the connection's own I/O timeout, mirroring the teacher's
// blocking reader.ReadString calls.
func (t *Target) Resume(kind rsp.ResumeKind, timeout float64) rsp.ResumeResult {
	if kind == rsp.ResumeStop {
		return rsp.ResultSuccess
	}
	opcode := byte('c')
	if kind == rsp.ResumeStep {
		opcode = 's'
	}
	if err := t.writeOpcode(opcode); err != nil {
		return rsp.ResultFailure
	}
	if _, err := t.readUntil(resumeSentinel); err != nil {
		return rsp.ResultFailure
	}
	code, err := t.r.ReadByte()
	if err != nil {
		return rsp.ResultFailure
	}
	switch code {
	case '1':
		return rsp.ResultInterrupted
	case '2':
		return rsp.ResultSyscall
	default:
		if kind == rsp.ResumeStep {
			return rsp.ResultStepped
		}
		return rsp.ResultSuccess
	}
}

func (t *Target) Terminate() {
	t.port.Close()
}

func (t *Target) Reset(kind rsp.ResetKind) bool {
	arg := "W"
	if kind == rsp.ResetCold {
		arg = "C"
	}
	if err := t.writeOpcode('R', arg); err != nil {
		return false
	}
	_, err := t.readUntil(replySentinel)
	return err == nil
}

// CycleCount/InstrCount: the board has no accessible counters over
// this wire protocol, so both always report 0.
func (t *Target) CycleCount() uint64 { return 0 }
func (t *Target) InstrCount() uint64 { return 0 }

func (t *Target) ReadRegister(reg int) (uint64, int) {
	if reg < 0 || reg > pcReg {
		return 0, 0
	}
	if err := t.writeOpcode('p', fmt.Sprintf("%02x", reg)); err != nil {
		return 0, 0
	}
	reply, err := t.readUntil(replySentinel)
	if err != nil || len(reply) != 8 {
		return 0, 0
	}
	raw, err := hex.DecodeString(reply)
	if err != nil {
		return 0, 0
	}
	v := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	return uint64(v), 4
}

func (t *Target) WriteRegister(reg int, value uint64) int {
	if reg < 0 || reg > pcReg {
		return 0
	}
	if err := t.writeOpcode('P', fmt.Sprintf("%02x", reg), hex8(uint32(value))); err != nil {
		return 0
	}
	if _, err := t.readUntil(replySentinel); err != nil {
		return 0
	}
	return 4
}

func (t *Target) Read(addr uint64, buf []byte) int {
	if err := t.writeOpcode('m', hex8(uint32(addr)), hex8(uint32(len(buf)))); err != nil {
		return 0
	}
	reply, err := t.readUntil(replySentinel)
	if err != nil {
		return 0
	}
	raw, err := hex.DecodeString(reply)
	if err != nil {
		return 0
	}
	n := copy(buf, raw)
	return n
}

func (t *Target) Write(addr uint64, buf []byte) int {
	payload := hex.EncodeToString(buf)
	if err := t.writeOpcode('M', hex8(uint32(addr)), hex8(uint32(len(buf))), payload); err != nil {
		return 0
	}
	if _, err := t.readUntil(replySentinel); err != nil {
		return 0
	}
	return len(buf)
}

// InsertMatchpoint/RemoveMatchpoint: the board has no hardware
// breakpoint unit in the teacher's source either, so this target also
// always declines and leaves software breakpoints to the dispatcher.
func (t *Target) InsertMatchpoint(addr uint64, kind rsp.MatchpointKind) bool { return false }
func (t *Target) RemoveMatchpoint(addr uint64, kind rsp.MatchpointKind) bool { return false }

// Command: the physical board has no monitor command handler.
func (t *Target) Command(text string, out io.Writer) bool { return false }

func (t *Target) TimeStamp() float64 {
	return float64(time.Since(t.created).Nanoseconds())
}

func (t *Target) RegisterSize(reg int) int {
	if reg >= 0 && reg <= pcReg {
		return 4
	}
	return 0
}

func (t *Target) RegisterCount() int { return 33 }
