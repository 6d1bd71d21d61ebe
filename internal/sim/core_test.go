package sim

import (
	"testing"

	"github.com/rvdbg/gdbstub/rsp"
)

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func putWord(c *Core, addr uint32, word uint32) {
	c.mem.writeWord(addr, word)
}

func TestAddiAndAdd(t *testing.T) {
	c := New()
	// addi x1, x0, 5
	putWord(c, 0, encodeI(0x13, 1, 0, 0, 5))
	// addi x2, x0, 7
	putWord(c, 4, encodeI(0x13, 2, 0, 0, 7))
	// add x3, x1, x2
	putWord(c, 8, encodeR(0x33, 3, 0, 1, 2, 0))

	for i := 0; i < 3; i++ {
		if r := c.Resume(rsp.ResumeStep, 0); r != rsp.ResultStepped {
			t.Fatalf("step %d result = %v, want STEPPED", i, r)
		}
	}

	v, _ := c.ReadRegister(3)
	if v != 12 {
		t.Errorf("x3 = %d, want 12", v)
	}
	pc, _ := c.ReadRegister(pcReg)
	if pc != 12 {
		t.Errorf("pc = %d, want 12", pc)
	}
}

func TestBranchTaken(t *testing.T) {
	c := New()
	putWord(c, 0, encodeBranch(0, 0, 0, 8))   // beq x0, x0, +8
	putWord(c, 8, encodeI(0x13, 5, 0, 0, 99)) // addi x5, x0, 99 (landing site)

	if r := c.Resume(rsp.ResumeStep, 0); r != rsp.ResultStepped {
		t.Fatalf("branch step result = %v", r)
	}
	pc, _ := c.ReadRegister(pcReg)
	if pc != 8 {
		t.Fatalf("pc after taken branch = %d, want 8", pc)
	}
	c.Resume(rsp.ResumeStep, 0)
	v, _ := c.ReadRegister(5)
	if v != 99 {
		t.Errorf("x5 = %d, want 99", v)
	}
}

func encodeBranch(funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	bit12 := (u >> 12) & 1
	bit11 := (u >> 11) & 1
	bits10_5 := (u >> 5) & 0x3f
	bits4_1 := (u >> 1) & 0xf
	return bit12<<31 | bits10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | bits4_1<<8 | bit11<<7 | 0x63
}

func TestLoadStoreWord(t *testing.T) {
	c := New()
	// addi x1, x0, 0x100 (base address)
	putWord(c, 0, encodeI(0x13, 1, 0, 0, 0x100))
	// addi x2, x0, 0x7f  (value to store)
	putWord(c, 4, encodeI(0x13, 2, 0, 0, 0x7f))
	// sw x2, 0(x1)
	putWord(c, 8, encodeS(0x23, 2, 0, 1, 0))
	// lw x3, 0(x1)
	putWord(c, 12, encodeI(0x03, 3, 2, 1, 0))

	for i := 0; i < 4; i++ {
		c.Resume(rsp.ResumeStep, 0)
	}

	v, _ := c.ReadRegister(3)
	if v != 0x7f {
		t.Errorf("x3 = %#x, want 0x7f", v)
	}
}

func encodeS(opcode, rs2, funct3, rs1 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func TestEbreakInterrupts(t *testing.T) {
	c := New()
	putWord(c, 0, 0x00100073) // ebreak
	r := c.Resume(rsp.ResumeStep, 0)
	if r != rsp.ResultInterrupted {
		t.Fatalf("resume result = %v, want INTERRUPTED", r)
	}
	pc, _ := c.ReadRegister(pcReg)
	if pc != 0 {
		t.Errorf("pc after ebreak = %d, want unchanged 0", pc)
	}
}

func TestEcallReturnsSyscallAndAdvancesPCOnNextResume(t *testing.T) {
	c := New()
	putWord(c, 0, 0x00000073)                   // ecall
	putWord(c, 4, encodeI(0x13, 1, 0, 0, 1))     // addi x1, x0, 1

	r := c.Resume(rsp.ResumeStep, 0)
	if r != rsp.ResultSyscall {
		t.Fatalf("resume result = %v, want SYSCALL", r)
	}
	pc, _ := c.ReadRegister(pcReg)
	if pc != 0 {
		t.Errorf("pc right after ecall = %d, want still 0", pc)
	}

	r = c.Resume(rsp.ResumeStep, 0)
	if r != rsp.ResultStepped {
		t.Fatalf("resume after pending ecall = %v, want STEPPED", r)
	}
	pc, _ = c.ReadRegister(pcReg)
	if pc != 8 {
		t.Errorf("pc after advancing past ecall and executing addi = %d, want 8", pc)
	}
	v, _ := c.ReadRegister(1)
	if v != 1 {
		t.Errorf("x1 = %d, want 1", v)
	}
}

func TestResetCold(t *testing.T) {
	c := New()
	putWord(c, 0, encodeI(0x13, 1, 0, 0, 1))
	c.Resume(rsp.ResumeStep, 0)
	if c.InstrCount() == 0 {
		t.Fatalf("expected instruction count to be nonzero before reset")
	}
	if !c.Reset(rsp.ResetCold) {
		t.Fatalf("Reset(COLD) should succeed")
	}
	if c.CycleCount() != 0 || c.InstrCount() != 0 {
		t.Errorf("counts after cold reset = %d, %d; want 0, 0", c.CycleCount(), c.InstrCount())
	}
	pc, _ := c.ReadRegister(pcReg)
	if pc != 0 {
		t.Errorf("pc after reset = %d, want 0", pc)
	}
}

func TestMatchpointsAlwaysDeclined(t *testing.T) {
	c := New()
	if c.InsertMatchpoint(0x1000, rsp.HWBreak) {
		t.Errorf("InsertMatchpoint should always report false")
	}
	if c.RemoveMatchpoint(0x1000, rsp.WatchWrite) {
		t.Errorf("RemoveMatchpoint should always report false")
	}
}
