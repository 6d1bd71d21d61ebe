// Package sim implements an RV32I target (SPEC_FULL.md §4.I): a small
// single-hart simulator that plugs into rsp.Target so the dispatcher
// in package rsp can drive it exactly like a real board.
package sim

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rvdbg/gdbstub/rsp"
)

// pcReg is the GDB RISC-V register number for pc, one past the 32
// general-purpose registers (spec §4.A register map).
const pcReg = 32

// nanosPerInstr is the simulated clock period used to derive
// TimeStamp from the retired-instruction count; the target has no
// real clock of its own.
const nanosPerInstr = 10 // 100MHz-equivalent

// Core is an RV32I simulator target.
type Core struct {
	regs [32]uint32
	pc   uint32
	mem  *memory

	cycles uint64
	instrs uint64

	pendingEcall bool

	vcd       *vcdWriter
	vcdEnable bool
}

// New creates a simulator with all registers and memory zeroed.
func New() *Core {
	return &Core{mem: newMemory()}
}

// EnableVCD directs retired-instruction samples to w, starting with
// the next instruction executed.
func (c *Core) EnableVCD(w io.Writer) {
	c.vcd = newVCDWriter(w)
	c.vcdEnable = true
}

func (c *Core) advancePastPendingEcall() {
	if c.pendingEcall {
		c.pc += 4
		c.pendingEcall = false
	}
}

func (c *Core) traceSample() {
	if c.vcdEnable && c.vcd != nil {
		c.vcd.sample(c.instrs*nanosPerInstr, c.pc, c.instrs)
	}
}

func (c *Core) execOne() execOutcome {
	outcome := step(&c.regs, &c.pc, c.mem)
	c.cycles++
	c.instrs++
	c.traceSample()
	return outcome
}

// Resume implements rsp.Target.
func (c *Core) Resume(kind rsp.ResumeKind, timeout float64) rsp.ResumeResult {
	if kind == rsp.ResumeStop {
		return rsp.ResultSuccess
	}

	c.advancePastPendingEcall()

	if kind == rsp.ResumeStep {
		switch c.execOne() {
		case outcomeEcall:
			c.pendingEcall = true
			return rsp.ResultSyscall
		case outcomeEbreak:
			return rsp.ResultInterrupted
		default:
			return rsp.ResultStepped
		}
	}

	deadline := time.Now().Add(time.Duration(timeout * float64(time.Second)))
	for {
		switch c.execOne() {
		case outcomeEcall:
			c.pendingEcall = true
			return rsp.ResultSyscall
		case outcomeEbreak:
			return rsp.ResultInterrupted
		}
		if timeout <= 0 || time.Now().After(deadline) {
			return rsp.ResultTimeout
		}
	}
}

// Terminate implements rsp.Target. The simulator holds no external
// resources to release.
func (c *Core) Terminate() {}

// Reset implements rsp.Target.
func (c *Core) Reset(kind rsp.ResetKind) bool {
	c.regs = [32]uint32{}
	c.pc = 0
	c.pendingEcall = false
	if kind == rsp.ResetCold {
		c.cycles = 0
		c.instrs = 0
		if c.vcd != nil {
			c.vcd.reset()
		}
	}
	return true
}

func (c *Core) CycleCount() uint64 { return c.cycles }
func (c *Core) InstrCount() uint64 { return c.instrs }

// ReadRegister implements rsp.Target. Registers 0..31 are the RV32I
// general-purpose file, 32 is pc. Anything beyond that is an
// unmodeled CSR and reports failure.
func (c *Core) ReadRegister(reg int) (uint64, int) {
	switch {
	case reg >= 0 && reg < 32:
		return uint64(c.regs[reg]), 4
	case reg == pcReg:
		return uint64(c.pc), 4
	default:
		return 0, 0
	}
}

func (c *Core) WriteRegister(reg int, value uint64) int {
	switch {
	case reg == 0:
		return 4 // x0 writes are accepted and discarded
	case reg > 0 && reg < 32:
		c.regs[reg] = uint32(value)
		return 4
	case reg == pcReg:
		c.pc = uint32(value)
		return 4
	default:
		return 0
	}
}

func (c *Core) Read(addr uint64, buf []byte) int {
	return c.mem.Read(uint32(addr), buf)
}

func (c *Core) Write(addr uint64, buf []byte) int {
	return c.mem.Write(uint32(addr), buf)
}

// InsertMatchpoint/RemoveMatchpoint implement rsp.Target. The
// simulator never accelerates matchpoints in hardware. The dispatcher
// handles software breakpoints itself by EBREAK injection and answers
// hardware breakpoint and watchpoint requests with an empty reply.
func (c *Core) InsertMatchpoint(addr uint64, kind rsp.MatchpointKind) bool { return false }
func (c *Core) RemoveMatchpoint(addr uint64, kind rsp.MatchpointKind) bool { return false }

// Command implements rsp.Target's "monitor" extension point for
// commands the dispatcher itself doesn't recognize.
func (c *Core) Command(text string, out io.Writer) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "regs":
		for i := 0; i < 32; i += 4 {
			fmt.Fprintf(out, "x%-2d=%08x x%-2d=%08x x%-2d=%08x x%-2d=%08x\n",
				i, c.regs[i], i+1, c.regs[i+1], i+2, c.regs[i+2], i+3, c.regs[i+3])
		}
		fmt.Fprintf(out, "pc=%08x\n", c.pc)
		return true
	case "help":
		fmt.Fprintf(out, "regs                       - dump the RV32I register file\n")
		return true
	default:
		return false
	}
}

// TimeStamp implements rsp.Target, deriving simulated nanoseconds from
// the retired-instruction count since the last cold reset.
func (c *Core) TimeStamp() float64 {
	return float64(c.instrs * nanosPerInstr)
}

func (c *Core) RegisterSize(reg int) int {
	if reg >= 0 && reg <= pcReg {
		return 4
	}
	return 0
}

func (c *Core) RegisterCount() int { return 33 }
