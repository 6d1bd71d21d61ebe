package rsp

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// KillBehaviour selects what the server does when GDB sends 'k'.
type KillBehaviour int

const (
	ResetOnKill KillBehaviour = iota
	ExitOnKill
)

// ServerConfig holds the construction-time choices spec §4.G and §6
// describe: the kill-behaviour and the fixed timing constants of the
// continue loop.
type ServerConfig struct {
	Kill KillBehaviour

	// SliceTimeout is the small periodic wake-up used to poll for
	// BREAK during a continue (spec §4.G, "a small constant, e.g. 100
	// ms"). Zero selects the default of 0.1s.
	SliceTimeout float64
}

// Describer is an optional Target extension: a target that can
// describe its own register layout answers GDB's
// "qXfer:features:read:target.xml" query instead of requiring GDB's
// built-in default for the architecture.
type Describer interface {
	TargetXML() string
}

// Server is the RSP dispatcher (Component G): the receive/decode/act/
// reply loop, the continue/step timing state machine, the syscall
// round trip, the monitor command handler, and matchpoint management.
type Server struct {
	conn   *Connection
	pkt    *packet
	mp     *matchpointTable
	trace  *TraceFlags
	target Target
	cfg    ServerConfig

	userTimeout    float64 // seconds; only applies when userTimeoutSet
	userTimeoutSet bool    // false means no bound

	exitFunc func(code int)
}

// NewServer constructs a dispatcher around conn and target. trace may
// be nil to disable diagnostic gating (every flag reads as false).
func NewServer(conn *Connection, target Target, trace *TraceFlags, cfg ServerConfig) *Server {
	if cfg.SliceTimeout <= 0 {
		cfg.SliceTimeout = 0.1
	}
	if trace == nil {
		trace = NewTraceFlags()
	}

	capacity := minPacketCapacity
	if n := target.RegisterCount(); n > 0 {
		total := 1
		for i := 0; i < n; i++ {
			total += 2 * target.RegisterSize(i)
		}
		if total > capacity {
			capacity = total
		}
	}

	s := &Server{
		conn:     conn,
		pkt:      newPacket(capacity),
		mp:       newMatchpointTable(),
		trace:    trace,
		target:   target,
		cfg:      cfg,
		exitFunc: os.Exit,
	}
	installTarget(target)
	return s
}

func (s *Server) tracef(flag string, format string, args ...interface{}) {
	if s.trace.Get(flag) {
		log.Printf(format, args...)
	}
}

// Run is the outer accept/serve loop described in spec §4.G. It
// returns an error only when the transport cannot be (re)connected,
// which spec §7 classifies as fatal.
func (s *Server) Run() error {
	for {
		for !s.conn.IsConnected() {
			if err := s.conn.Connect(); err != nil {
				return fmt.Errorf("rsp: cannot accept connection: %w", err)
			}
		}

		if !s.handleOnePacket() {
			s.conn.Close()
		}
	}
}

// handleOnePacket reads and dispatches a single RSP packet. It returns
// false on framing failure (the caller should close the connection and
// return to the accept loop).
func (s *Server) handleOnePacket() bool {
	if !s.conn.GetPkt(s.pkt) {
		return false
	}

	payload := s.pkt.data()
	s.tracef("rsp", "rsp: <- %s", payload)

	if len(payload) == 0 {
		return s.replyEmpty()
	}

	switch payload[0] {
	case '!':
		return s.replyOK()
	case '?':
		return s.replyStop(SigTrap)
	case 'A':
		return s.replyErr(1)
	case 'b', 'B', 'd', 'r', 't':
		s.tracef("rsp", "rsp: deprecated command %q ignored", payload)
		return true
	case 'D':
		ok := s.replyOK()
		s.conn.Close()
		return ok
	case 'H':
		return s.replyOK()
	case 'T':
		return s.replyOK()
	case 'k':
		return s.handleKill()
	case 'g':
		return s.handleReadAllRegisters()
	case 'G':
		return s.handleWriteAllRegisters(payload)
	case 'p':
		return s.handleReadRegister(payload)
	case 'P':
		return s.handleWriteRegister(payload)
	case 'm':
		return s.handleReadMemory(payload)
	case 'M':
		return s.handleWriteMemory(payload)
	case 'X':
		return s.handleWriteMemoryBinary(payload)
	case 'c', 'C', 's', 'S':
		return s.handleContinueOrStep(payload)
	case 'Z':
		return s.handleInsertMatchpoint(payload)
	case 'z':
		return s.handleRemoveMatchpoint(payload)
	case 'q':
		return s.handleQuery(payload)
	case 'Q':
		return s.replyEmpty()
	case 'v':
		return s.handleV(payload)
	case 'F':
		// An unsolicited F reply (no syscall outstanding); ignore.
		s.tracef("rsp", "rsp: unexpected F packet outside syscall round trip")
		return true
	default:
		s.tracef("rsp", "rsp: unrecognized command %q, ignoring", payload)
		return true
	}
}

func (s *Server) replyOK() bool {
	s.pkt.packStr("OK")
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) replyEmpty() bool {
	s.pkt.setLength(0)
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) replyErr(code int) bool {
	s.pkt.packStr(fmt.Sprintf("E%02x", code))
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) replyStop(sig int) bool {
	s.pkt.packStr(fmt.Sprintf("S%02x", sig))
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) handleKill() bool {
	if s.cfg.Kill == ExitOnKill {
		s.tracef("rsp", "rsp: k received, exiting")
		s.target.Terminate()
		clearInstalledTarget()
		s.exitFunc(0)
		return true
	}
	s.tracef("rsp", "rsp: k received, ignoring (reset-on-kill)")
	return true
}

// --- Register access (spec §4.G "Register access") ---

func (s *Server) handleReadAllRegisters() bool {
	n := s.target.RegisterCount()
	offset := 0
	for reg := 0; reg < n; reg++ {
		value, size := s.target.ReadRegister(reg)
		if size == 0 {
			return s.replyErr(1)
		}
		val2hex(value, s.pkt.buf[offset:], size, true)
		offset += size * 2
	}
	s.pkt.setLength(offset)
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) handleWriteAllRegisters(payload []byte) bool {
	hexData := payload[1:]
	n := s.target.RegisterCount()
	offset := 0
	for reg := 0; reg < n; reg++ {
		size := s.target.RegisterSize(reg)
		if offset+size*2 > len(hexData) {
			break
		}
		value := hex2val(hexData[offset:], size, true)
		if wrote := s.target.WriteRegister(reg, value); wrote != size {
			s.tracef("rsp", "rsp: G write register %d size mismatch: wrote %d want %d", reg, wrote, size)
		}
		offset += size * 2
	}
	return s.replyOK()
}

func (s *Server) handleReadRegister(payload []byte) bool {
	regNum, err := strconv.ParseUint(string(payload[1:]), 16, 32)
	if err != nil {
		return s.replyErr(1)
	}
	value, size := s.target.ReadRegister(int(regNum))
	if size == 0 {
		return s.replyErr(1)
	}
	n := val2hex(value, s.pkt.buf, size, true)
	s.pkt.setLength(n)
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) handleWriteRegister(payload []byte) bool {
	body := string(payload[1:])
	parts := strings.SplitN(body, "=", 2)
	if len(parts) != 2 {
		return s.replyErr(1)
	}
	regNum, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return s.replyErr(1)
	}
	size := s.target.RegisterSize(int(regNum))
	if size == 0 {
		return s.replyErr(1)
	}
	value := hex2val([]byte(parts[1]), size, true)
	if s.target.WriteRegister(int(regNum), value) == 0 {
		return s.replyErr(1)
	}
	return s.replyOK()
}

// --- Memory access (spec §4.G "Memory access") ---

func parseAddrLen(body string) (addr uint64, length uint64, ok bool) {
	parts := strings.SplitN(body, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	l, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	return a, l, true
}

func (s *Server) handleReadMemory(payload []byte) bool {
	addr, length, ok := parseAddrLen(string(payload[1:]))
	if !ok {
		return s.replyErr(1)
	}
	if 2*length >= uint64(s.pkt.capacity()) {
		s.tracef("rsp", "rsp: m request truncated to fit packet capacity")
		length = uint64(s.pkt.capacity())/2 - 1
	}
	buf := make([]byte, length)
	n := s.target.Read(addr, buf)
	if n < int(length) {
		return s.replyErr(1)
	}
	hn := ascii2hex(buf, s.pkt.buf)
	s.pkt.setLength(hn)
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) handleWriteMemory(payload []byte) bool {
	body := string(payload[1:])
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return s.replyErr(1)
	}
	addr, length, ok := parseAddrLen(body[:colon])
	if !ok {
		return s.replyErr(1)
	}
	hexData := body[colon+1:]
	if uint64(len(hexData)) != 2*length {
		return s.replyErr(1)
	}
	data := hex2ascii([]byte(hexData))
	if n := s.target.Write(addr, data); uint64(n) != length {
		return s.replyErr(1)
	}
	return s.replyOK()
}

func (s *Server) handleWriteMemoryBinary(payload []byte) bool {
	body := payload[1:]
	colon := -1
	for i, b := range body {
		if b == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return s.replyErr(1)
	}
	addr, length, ok := parseAddrLen(string(body[:colon]))
	if !ok {
		return s.replyErr(1)
	}
	raw := append([]byte(nil), body[colon+1:]...)
	n := rspUnescape(raw, len(raw))
	raw = raw[:n]
	if uint64(n) != length {
		s.tracef("rsp", "rsp: X payload length %d != declared %d, writing minimum", n, length)
		if uint64(n) < length {
			length = uint64(n)
		} else {
			raw = raw[:length]
		}
	}
	if wrote := s.target.Write(addr, raw); uint64(wrote) != length {
		return s.replyErr(1)
	}
	return s.replyOK()
}

// --- Matchpoints (spec §4.G "Matchpoints (Z/z)") ---

const ebreakPattern = 0x00100073

func parseMatchpoint(payload []byte) (kind MatchpointKind, addr uint64, length uint64, ok bool) {
	body := string(payload[1:])
	parts := strings.SplitN(body, ",", 3)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	k, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || k > uint64(WatchAccess) {
		return 0, 0, 0, false
	}
	a, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	l, err := strconv.ParseUint(parts[2], 16, 64)
	if err != nil || l > 4 {
		return 0, 0, 0, false
	}
	return MatchpointKind(k), a, l, true
}

func (s *Server) handleInsertMatchpoint(payload []byte) bool {
	kind, addr, length, ok := parseMatchpoint(payload)
	if !ok {
		return s.replyErr(1)
	}

	if kind != SWBreak {
		if s.target.InsertMatchpoint(addr, kind) {
			return s.replyOK()
		}
		return s.replyEmpty()
	}

	original := make([]byte, length)
	if n := s.target.Read(addr, original); uint64(n) != length {
		return s.replyErr(1)
	}
	if !s.mp.add(kind, addr, original) {
		return s.replyErr(1)
	}
	var ebreak [4]byte
	ebreak[0] = byte(ebreakPattern & 0xff)
	ebreak[1] = byte((ebreakPattern >> 8) & 0xff)
	ebreak[2] = byte((ebreakPattern >> 16) & 0xff)
	ebreak[3] = byte((ebreakPattern >> 24) & 0xff)
	if n := s.target.Write(addr, ebreak[:length]); uint64(n) != length {
		s.mp.remove(kind, addr)
		return s.replyErr(1)
	}
	return s.replyOK()
}

func (s *Server) handleRemoveMatchpoint(payload []byte) bool {
	kind, addr, length, ok := parseMatchpoint(payload)
	if !ok {
		return s.replyErr(1)
	}

	if kind != SWBreak {
		if s.target.RemoveMatchpoint(addr, kind) {
			return s.replyOK()
		}
		return s.replyEmpty()
	}

	original, found := s.mp.remove(kind, addr)
	if !found {
		return s.replyErr(1)
	}
	if n := s.target.Write(addr, original); uint64(n) != length {
		return s.replyErr(1)
	}
	return s.replyOK()
}

// --- Query / Set (spec §4.G "Query (q) and Set (Q)") ---

func (s *Server) handleQuery(payload []byte) bool {
	body := string(payload)

	switch {
	case body == "qC":
		s.pkt.packStr("QC1")
		return s.conn.PutPkt(s.pkt)
	case body == "qfThreadInfo":
		s.pkt.packStr("m1")
		return s.conn.PutPkt(s.pkt)
	case body == "qsThreadInfo":
		s.pkt.packStr("l")
		return s.conn.PutPkt(s.pkt)
	case strings.HasPrefix(body, "qSupported"):
		reply := fmt.Sprintf("PacketSize=%x", s.pkt.capacity())
		if _, ok := s.target.(Describer); ok {
			reply += ";qXfer:features:read+"
		}
		s.pkt.packStr(reply)
		return s.conn.PutPkt(s.pkt)
	case strings.HasPrefix(body, "qXfer:features:read:target.xml:"):
		return s.handleTargetXML(body)
	case strings.HasPrefix(body, "qSymbol"):
		return s.replyOK()
	case strings.HasPrefix(body, "qThreadExtraInfo"):
		s.pkt.buf[0] = 0
		n := ascii2hex([]byte("Runnable"), s.pkt.buf)
		s.pkt.setLength(n)
		return s.conn.PutPkt(s.pkt)
	case strings.HasPrefix(body, "qRcmd,"):
		return s.handleMonitor(body[len("qRcmd,"):])
	case strings.HasPrefix(body, "qCRC"):
		return s.replyErr(1)
	case body == "qL":
		return s.replyEmpty()
	default:
		return s.replyEmpty()
	}
}

// handleTargetXML answers "qXfer:features:read:target.xml:<off>,<len>"
// for targets that implement Describer, slicing the XML document the
// way qXfer:read generically works: 'm' plus data when more remains,
// 'l' plus the final chunk otherwise.
func (s *Server) handleTargetXML(body string) bool {
	describer, ok := s.target.(Describer)
	if !ok {
		return s.replyEmpty()
	}

	const prefix = "qXfer:features:read:target.xml:"
	args := strings.SplitN(body[len(prefix):], ",", 2)
	if len(args) != 2 {
		return s.replyErr(1)
	}
	offset, err := strconv.ParseUint(args[0], 16, 64)
	if err != nil {
		return s.replyErr(1)
	}
	length, err := strconv.ParseUint(args[1], 16, 64)
	if err != nil {
		return s.replyErr(1)
	}

	xml := describer.TargetXML()
	if offset >= uint64(len(xml)) {
		s.pkt.packStr("l")
		return s.conn.PutPkt(s.pkt)
	}
	end := offset + length
	more := end < uint64(len(xml))
	if !more {
		end = uint64(len(xml))
	}
	chunk := xml[offset:end]
	if more {
		s.pkt.packStr("m" + chunk)
	} else {
		s.pkt.packStr("l" + chunk)
	}
	return s.conn.PutPkt(s.pkt)
}

// --- v packets (spec §4.G "vCont, vRun, vFile, vFlash, vAttach, vMustReplyEmpty") ---

func (s *Server) handleV(payload []byte) bool {
	body := string(payload)
	switch {
	case strings.HasPrefix(body, "vAttach"):
		return s.replyStop(SigTrap)
	case strings.HasPrefix(body, "vRun"):
		return s.replyStop(SigTrap)
	case body == "vMustReplyEmpty":
		return s.replyEmpty()
	default:
		return s.replyEmpty()
	}
}
