package rsp

import "io"

// ResumeKind selects how Target.Resume should run the target.
type ResumeKind int

const (
	ResumeStep ResumeKind = iota
	ResumeContinue
	ResumeStop
)

// ResumeResult is the outcome of a Resume call.
type ResumeResult int

const (
	ResultSuccess ResumeResult = iota
	ResultFailure
	ResultInterrupted
	ResultTimeout
	ResultSyscall
	ResultStepped
	ResultNone
)

func (r ResumeResult) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultFailure:
		return "FAILURE"
	case ResultInterrupted:
		return "INTERRUPTED"
	case ResultTimeout:
		return "TIMEOUT"
	case ResultSyscall:
		return "SYSCALL"
	case ResultStepped:
		return "STEPPED"
	case ResultNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ResetKind selects a warm or cold target reset.
type ResetKind int

const (
	ResetWarm ResetKind = iota
	ResetCold
)

// Signal numbers used in "S<nn>" stop replies (spec §4.G/§6).
const (
	SigNone = 0
	SigInt  = 2
	SigTrap = 5
	SigXcpu = 24
	SigUnk  = 143
)

// Target is the contract an implementer must satisfy to plug a CPU
// simulator (or a real board) underneath the dispatcher (spec §4.F).
// A call that cannot fulfill its contract returns the stated sentinel
// (0 bytes, FAILURE) rather than panicking; the dispatcher turns that
// into an E01 reply or, for resume itself returning an unrecognized
// value, a fatal termination.
type Target interface {
	// Resume runs the target according to kind. When kind is
	// ResumeContinue, timeout bounds how long this call may block
	// before returning ResultTimeout; zero means "poll, don't wait".
	// ResumeStop always returns ResultSuccess promptly.
	Resume(kind ResumeKind, timeout float64) ResumeResult

	Terminate()

	Reset(kind ResetKind) bool

	CycleCount() uint64
	InstrCount() uint64

	// ReadRegister/WriteRegister follow the GDB RISC-V register map:
	// 0..31 general purpose, 32 PC, higher numbers CSRs. They return
	// the number of bytes transferred; 0 signals failure.
	ReadRegister(reg int) (value uint64, size int)
	WriteRegister(reg int, value uint64) (size int)

	Read(addr uint64, buf []byte) (n int)
	Write(addr uint64, buf []byte) (n int)

	InsertMatchpoint(addr uint64, kind MatchpointKind) bool
	RemoveMatchpoint(addr uint64, kind MatchpointKind) bool

	Command(text string, out io.Writer) bool

	// TimeStamp returns simulated nanoseconds since the last cold
	// reset.
	TimeStamp() float64

	// RegisterSize returns the byte width of the given register
	// number, used to size hex encodings in 'g'/'G'/'p'/'P' replies.
	RegisterSize(reg int) int

	// RegisterCount returns how many registers 'g'/'G' iterate over.
	RegisterCount() int
}
