package rsp

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"
)

// fakeTarget is a small scripted Target used to exercise the
// dispatcher (Component G) independent of any real CPU simulator, per
// SPEC_FULL.md §8's note that framing/dispatch correctness is tested
// against a fake, not against the simulator or serial targets.
type fakeTarget struct {
	regs [33]uint64
	mem  map[uint64]byte

	resumeResults []ResumeResult
	resumeCalls   int

	resetCalls int
	cmdCalls   []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{mem: make(map[uint64]byte)}
}

func (f *fakeTarget) Resume(kind ResumeKind, timeout float64) ResumeResult {
	if f.resumeCalls >= len(f.resumeResults) {
		return ResultSuccess
	}
	r := f.resumeResults[f.resumeCalls]
	f.resumeCalls++
	return r
}
func (f *fakeTarget) Terminate()             {}
func (f *fakeTarget) Reset(kind ResetKind) bool { f.resetCalls++; return true }
func (f *fakeTarget) CycleCount() uint64     { return 7 }
func (f *fakeTarget) InstrCount() uint64     { return 9 }

func (f *fakeTarget) ReadRegister(reg int) (uint64, int) {
	if reg < 0 || reg >= len(f.regs) {
		return 0, 0
	}
	return f.regs[reg], 4
}
func (f *fakeTarget) WriteRegister(reg int, value uint64) int {
	if reg < 0 || reg >= len(f.regs) {
		return 0
	}
	f.regs[reg] = value
	return 4
}
func (f *fakeTarget) Read(addr uint64, buf []byte) int {
	for i := range buf {
		buf[i] = f.mem[addr+uint64(i)]
	}
	return len(buf)
}
func (f *fakeTarget) Write(addr uint64, buf []byte) int {
	for i, b := range buf {
		f.mem[addr+uint64(i)] = b
	}
	return len(buf)
}
func (f *fakeTarget) InsertMatchpoint(addr uint64, kind MatchpointKind) bool { return false }
func (f *fakeTarget) RemoveMatchpoint(addr uint64, kind MatchpointKind) bool { return false }
func (f *fakeTarget) Command(text string, out io.Writer) bool {
	f.cmdCalls = append(f.cmdCalls, text)
	if text == "known" {
		io.WriteString(out, "handled\n")
		return true
	}
	return false
}
func (f *fakeTarget) TimeStamp() float64  { return 42 }
func (f *fakeTarget) RegisterSize(reg int) int {
	if reg >= 0 && reg < len(f.regs) {
		return 4
	}
	return 0
}
func (f *fakeTarget) RegisterCount() int { return len(f.regs) }

func newServerPair(t *testing.T, target Target) (*Server, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	conn := NewConnection(&pipeTransport{conn: a}, nil)
	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s := NewServer(conn, target, nil, ServerConfig{})
	return s, b
}

func clientSend(t *testing.T, peer net.Conn, payload string) {
	t.Helper()
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}
	frame := fmt.Sprintf("$%s#%02x", payload, sum)
	if _, err := peer.Write([]byte(frame)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	ack := make([]byte, 1)
	peer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := peer.Read(ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack[0] != '+' {
		t.Fatalf("expected ack, got %q", ack)
	}
}

// clientRecv reads one framed reply and acks it, returning the
// unescaped payload.
func clientRecv(t *testing.T, peer net.Conn) string {
	t.Helper()
	peer.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	raw := buf[:n]
	start := -1
	end := -1
	for i, b := range raw {
		if b == '$' {
			start = i
		}
		if b == '#' {
			end = i
			break
		}
	}
	if start < 0 || end < 0 {
		t.Fatalf("malformed reply frame: %q", raw)
	}
	payload := make([]byte, end-start-1)
	copy(payload, raw[start+1:end])
	n2 := rspUnescape(payload, len(payload))
	peer.Write([]byte("+"))
	return string(payload[:n2])
}

func TestServerReadAllRegisters(t *testing.T) {
	target := newFakeTarget()
	target.regs[0] = 0x11223344
	s, peer := newServerPair(t, target)
	defer peer.Close()

	go s.handleOnePacket()
	clientSend(t, peer, "g")
	reply := clientRecv(t, peer)
	if reply[:8] != "44332211" {
		t.Errorf("first register in g reply = %q, want little-endian 44332211", reply[:8])
	}
}

func TestServerReadWriteMemory(t *testing.T) {
	target := newFakeTarget()
	s, peer := newServerPair(t, target)
	defer peer.Close()

	go s.handleOnePacket()
	clientSend(t, peer, "M1000,4:deadbeef")
	if reply := clientRecv(t, peer); reply != "OK" {
		t.Fatalf("M reply = %q, want OK", reply)
	}

	go s.handleOnePacket()
	clientSend(t, peer, "m1000,4")
	reply := clientRecv(t, peer)
	if reply != "deadbeef" {
		t.Errorf("m reply = %q, want deadbeef", reply)
	}
}

func TestServerSoftwareBreakpointRoundTrip(t *testing.T) {
	target := newFakeTarget()
	target.mem[0x2000] = 0x11
	target.mem[0x2001] = 0x22
	target.mem[0x2002] = 0x33
	target.mem[0x2003] = 0x44
	s, peer := newServerPair(t, target)
	defer peer.Close()

	go s.handleOnePacket()
	clientSend(t, peer, "Z0,2000,4")
	if reply := clientRecv(t, peer); reply != "OK" {
		t.Fatalf("Z0 reply = %q, want OK", reply)
	}
	if target.mem[0x2000] != 0x73 {
		t.Errorf("ebreak not written at breakpoint address: %x", target.mem[0x2000])
	}

	go s.handleOnePacket()
	clientSend(t, peer, "z0,2000,4")
	if reply := clientRecv(t, peer); reply != "OK" {
		t.Fatalf("z0 reply = %q, want OK", reply)
	}
	if target.mem[0x2000] != 0x11 || target.mem[0x2003] != 0x44 {
		t.Errorf("original bytes not restored after z0: %x %x", target.mem[0x2000], target.mem[0x2003])
	}
}

func TestServerMonitorResetAndUnknown(t *testing.T) {
	target := newFakeTarget()
	s, peer := newServerPair(t, target)
	defer peer.Close()

	hexCmd := make([]byte, 0, 16)
	for _, b := range []byte("reset cold") {
		hexCmd = append(hexCmd, hex2char(int(b>>4)), hex2char(int(b&0xf)))
	}

	go s.handleOnePacket()
	clientSend(t, peer, "qRcmd,"+string(hexCmd))
	if reply := clientRecv(t, peer); reply != "OK" {
		t.Fatalf("monitor reset reply = %q, want OK", reply)
	}
	if target.resetCalls != 1 {
		t.Errorf("target.Reset was called %d times, want 1", target.resetCalls)
	}

	var unknown []byte
	for _, b := range []byte("frobnicate") {
		unknown = append(unknown, hex2char(int(b>>4)), hex2char(int(b&0xf)))
	}
	go s.handleOnePacket()
	clientSend(t, peer, "qRcmd,"+string(unknown))
	reply := clientRecv(t, peer)
	if reply != "E04" {
		t.Errorf("unhandled monitor command reply = %q, want E04", reply)
	}
}

func TestServerResumeKnownResultRepliesStopped(t *testing.T) {
	target := newFakeTarget()
	s, peer := newServerPair(t, target)
	defer peer.Close()

	go func() {
		s.handleResumeResult(ResumeContinue, ResultSuccess)
	}()
	reply := clientRecv(t, peer)
	if reply != "S05" {
		t.Errorf("reply for a known resume result = %q, want S05", reply)
	}
}
