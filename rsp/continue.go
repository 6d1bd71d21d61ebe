package rsp

import (
	"fmt"
	"log"
	"strconv"
	"time"
)

// RISC-V calling convention register numbers used for syscall
// forwarding (spec §4.G "File-I/O (syscall) forwarding").
const (
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regA3 = 13
	regA7 = 17
)

func (s *Server) handleContinueOrStep(payload []byte) bool {
	kind := ResumeStep
	if payload[0] == 'c' || payload[0] == 'C' {
		kind = ResumeContinue
	}
	// Signal argument (C<sig>/S<sig>) is accepted but ignored per spec.
	return s.runLoop(kind)
}

// runLoop implements the continue/step policy of spec §4.G: an
// explicit {IDLE -> RUNNING_SLICE -> (DONE|INTERRUPTED|SYSCALL|
// TIMED_OUT_SLICE|TIMED_OUT_USER) -> IDLE} state machine (spec §9).
func (s *Server) runLoop(kind ResumeKind) bool {
	if s.conn.HaveBreak() {
		s.target.Resume(ResumeStop, 0)
		return s.replyStop(SigInt)
	}

	if kind == ResumeStep {
		result := s.target.Resume(ResumeStep, 0)
		return s.handleResumeResult(kind, result)
	}

	start := time.Now()
	for {
		result := s.target.Resume(ResumeContinue, s.cfg.SliceTimeout)

		if result == ResultTimeout {
			if s.userTimeoutSet && time.Since(start).Seconds() >= s.userTimeout {
				s.target.Resume(ResumeStop, 0)
				return s.replyStop(SigXcpu)
			}
			if s.conn.HaveBreak() {
				s.target.Resume(ResumeStop, 0)
				return s.replyStop(SigInt)
			}
			continue
		}

		return s.handleResumeResult(kind, result)
	}
}

func (s *Server) handleResumeResult(kind ResumeKind, result ResumeResult) bool {
	switch result {
	case ResultInterrupted:
		return s.replyStop(SigTrap)
	case ResultSyscall:
		return s.handleSyscall(kind)
	case ResultSuccess, ResultStepped, ResultFailure, ResultNone:
		// All reply S05: the dispatcher has nothing more specific to
		// say than "stopped" for any of these.
		return s.replyStop(SigTrap)
	default:
		log.Fatalf("rsp: target returned unrecognized resume result %v, terminating", result)
		return false
	}
}

// pathLength walks target memory from addr until a NUL byte, as the
// File-I/O path arguments require.
func (s *Server) pathLength(addr uint64) int {
	var b [1]byte
	n := 0
	for n < 4096 {
		if s.target.Read(addr+uint64(n), b[:]) != 1 {
			break
		}
		if b[0] == 0 {
			break
		}
		n++
	}
	return n
}

// formatSyscallRequest builds the "F..." request text for the given
// a7 syscall number, per the table in spec §4.G.
func (s *Server) formatSyscallRequest(a7, a0, a1, a2 uint64) (string, bool) {
	switch a7 {
	case 57:
		return fmt.Sprintf("Fclose,%x", a0), true
	case 62:
		return fmt.Sprintf("Flseek,%x,%x,%x", a0, a1, a2), true
	case 63:
		return fmt.Sprintf("Fread,%x,%x,%x", a0, a1, a2), true
	case 64:
		return fmt.Sprintf("Fwrite,%x,%x,%x", a0, a1, a2), true
	case 80:
		return fmt.Sprintf("Ffstat,%x,%x", a0, a1), true
	case 169:
		return fmt.Sprintf("Fgettimeofday,%x,%x", a0, a1), true
	case 1024:
		pathlen := s.pathLength(a0)
		return fmt.Sprintf("Fopen,%x/%x,%x,%x", a0, pathlen, a1, a2), true
	case 1026:
		pathlen := s.pathLength(a0)
		return fmt.Sprintf("Funlink,%x/%x", a0, pathlen), true
	case 1038:
		pathlen := s.pathLength(a0)
		return fmt.Sprintf("Fstat,%x/%x,%x", a0, pathlen, a1), true
	default:
		return "", false
	}
}

func isHexDigit(b byte) bool {
	return char2hex(int(b)) >= 0
}

// parseFileIOReply decodes an "F<ret>[,<errno>[,C]]" reply per the
// state machine in spec §4.G.
func parseFileIOReply(payload []byte) (retcode int64, errno int64, ctrlc bool, malformed bool) {
	str := string(payload)
	if len(str) == 0 || str[0] != 'F' {
		return 0, 0, false, true
	}
	str = str[1:]

	i := 0
	neg := false
	if i < len(str) && str[i] == '-' {
		neg = true
		i++
	}
	start := i
	for i < len(str) && isHexDigit(str[i]) {
		i++
	}
	if i == start {
		return 0, 0, false, true
	}
	v, err := strconv.ParseInt(str[start:i], 16, 64)
	if err != nil {
		return 0, 0, false, true
	}
	if neg {
		v = -v
	}
	retcode = v
	rest := str[i:]

	if rest == "" {
		return retcode, 0, false, false
	}
	if rest[0] != ',' {
		return 0, 0, false, true
	}
	rest = rest[1:]

	j := 0
	for j < len(rest) && isHexDigit(rest[j]) {
		j++
	}
	if j == 0 {
		return 0, 0, false, true
	}
	errnoVal, err := strconv.ParseInt(rest[:j], 16, 64)
	if err != nil || errnoVal < 0 {
		return 0, 0, false, true
	}
	if errnoVal > 0 && retcode != -1 {
		return 0, 0, false, true
	}
	rest = rest[j:]

	if rest == "" {
		return retcode, errnoVal, false, false
	}
	if rest == ",C" {
		return retcode, errnoVal, true, false
	}
	return 0, 0, false, true
}

// handleSyscall implements the File-I/O round trip: request, await the
// "F" reply, apply the result to a0, and resume the same kind of run
// that triggered the syscall.
func (s *Server) handleSyscall(kind ResumeKind) bool {
	a7, _ := s.target.ReadRegister(regA7)
	a0, _ := s.target.ReadRegister(regA0)
	a1, _ := s.target.ReadRegister(regA1)
	a2, _ := s.target.ReadRegister(regA2)

	req, ok := s.formatSyscallRequest(a7, a0, a1, a2)
	if !ok {
		s.tracef("rsp", "rsp: unsupported syscall a7=%d", a7)
		return s.replyStop(SigTrap)
	}

	s.pkt.packStr(req)
	if !s.conn.PutPkt(s.pkt) {
		return false
	}

	if !s.conn.GetPkt(s.pkt) {
		return false
	}

	retcode, errno, ctrlc, malformed := parseFileIOReply(s.pkt.data())
	if malformed {
		return s.replyErr(1)
	}
	if ctrlc {
		s.target.Resume(ResumeStop, 0)
		return s.replyStop(SigInt)
	}

	result := retcode
	if errno > 0 {
		result = -errno
	}
	s.target.WriteRegister(regA0, uint64(result))

	return s.runLoop(kind)
}
