package rsp

import (
	"fmt"
	"log"
)

// breakByte is the bare out-of-band byte GDB sends to request an
// interrupt (Ctrl-C).
const breakByte = 0x03

// Transport is the byte-oriented duplex channel a Connection frames
// packets over. The two bindings in this package (TCP and stdio) both
// implement it; an embedded simulator or a test harness may supply its
// own.
type Transport interface {
	// Connect blocks until a peer is available (e.g. accepting a TCP
	// client) and returns an error only on an unrecoverable failure.
	Connect() error
	// Close tears down the current peer connection so Connect may be
	// called again to wait for a new one.
	Close() error
	IsConnected() bool
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

type rxItem struct {
	b   byte
	err error
}

// Connection is the framing layer described in spec §4.C: it turns a
// raw Transport into get_pkt/put_pkt with checksum validation, ack/nack
// retry, RSP escaping, and a non-blocking BREAK peek.
type Connection struct {
	transport Transport

	rx chan rxItem

	haveLookahead bool
	lookahead     byte

	pendingBreak bool

	trace *TraceFlags
}

// NewConnection wraps transport in the RSP framing layer. trace may be
// nil, in which case connection-level tracing is simply disabled.
func NewConnection(transport Transport, trace *TraceFlags) *Connection {
	return &Connection{
		transport: transport,
		trace:     trace,
	}
}

func (c *Connection) tracef(flag string, format string, args ...interface{}) {
	if c.trace != nil && c.trace.Get(flag) {
		log.Printf(format, args...)
	}
}

// Connect waits for a peer and starts the background byte reader that
// feeds GetPkt/HaveBreak.
func (c *Connection) Connect() error {
	if err := c.transport.Connect(); err != nil {
		return err
	}
	c.rx = make(chan rxItem, 4096)
	c.haveLookahead = false
	c.pendingBreak = false
	go c.readLoop()
	return nil
}

func (c *Connection) readLoop() {
	var buf [1024]byte
	for {
		n, err := c.transport.Read(buf[:])
		for i := 0; i < n; i++ {
			c.rx <- rxItem{b: buf[i]}
		}
		if err != nil {
			c.rx <- rxItem{err: err}
			return
		}
	}
}

func (c *Connection) Close() error {
	return c.transport.Close()
}

func (c *Connection) IsConnected() bool {
	return c.transport.IsConnected()
}

// readByte blocks for the next wire byte, preferring a byte stashed by
// HaveBreak's lookahead over reading a fresh one.
func (c *Connection) readByte() (byte, error) {
	if c.haveLookahead {
		c.haveLookahead = false
		return c.lookahead, nil
	}
	item := <-c.rx
	return item.b, item.err
}

func (c *Connection) sendAck(ok bool) error {
	var ack byte = '-'
	if ok {
		ack = '+'
	}
	_, err := c.transport.Write([]byte{ack})
	return err
}

// HaveBreak performs a non-blocking peek of at most one byte. It
// returns true exactly when a BREAK byte has been seen and not yet
// reported, either because this call's peek found one directly or
// because GetPkt's packet-start scan noticed one earlier and stashed
// it in the pending-break flag.
func (c *Connection) HaveBreak() bool {
	if c.pendingBreak {
		c.pendingBreak = false
		return true
	}

	if c.haveLookahead {
		// Already peeked a non-break byte waiting for a blocking read.
		return false
	}

	select {
	case item := <-c.rx:
		if item.err != nil {
			// Transport is dead; put the error back so the next
			// blocking read reports it. readLoop has stopped, so the
			// channel has room.
			c.rx <- item
			return false
		}
		if item.b == breakByte {
			return true
		}
		c.lookahead = item.b
		c.haveLookahead = true
		return false
	default:
		return false
	}
}

// GetPkt reads one RSP packet into p, validating its checksum and
// acking/nacking as required. It returns false if the underlying
// transport failed (the connection should be considered dead).
func (c *Connection) GetPkt(p *packet) bool {
	for {
		// Step 1: discard bytes until '$'.
		for {
			b, err := c.readByte()
			if err != nil {
				return false
			}
			if b == breakByte {
				c.pendingBreak = true
				continue
			}
			if b == '$' {
				break
			}
		}

		// Step 2: read payload, summing as we go.
		var sum byte
		length := 0
		overflow := false
		for {
			b, err := c.readByte()
			if err != nil {
				return false
			}
			if b == '$' {
				// A new packet started mid-payload; restart.
				length = 0
				sum = 0
				overflow = false
				continue
			}
			if b == '#' {
				break
			}
			if length < p.capacity()-1 {
				p.buf[length] = b
			} else {
				overflow = true
			}
			length++
			sum += b
		}

		// Step 3: read the two checksum hex digits.
		c1, err := c.readByte()
		if err != nil {
			return false
		}
		c2, err := c.readByte()
		if err != nil {
			return false
		}

		if overflow {
			c.tracef("conn", "rsp: packet exceeded capacity %d, rejecting", p.capacity())
			if err := c.sendAck(false); err != nil {
				return false
			}
			continue
		}

		want := byte(hex2val([]byte{c1, c2}, 1, false))
		if want != sum {
			c.tracef("conn", "rsp: checksum mismatch, got %02x want %02x", sum, want)
			if err := c.sendAck(false); err != nil {
				return false
			}
			continue
		}

		if err := c.sendAck(true); err != nil {
			return false
		}

		p.setLength(length)
		return true
	}
}

// escapeAndSum escapes payload per the RSP wire rules ('$','#','*','}'
// become '}' followed by byte^0x20) and returns the escaped bytes along
// with the checksum computed over them (i.e. over the actual on-wire
// bytes, including escape bytes).
func escapeAndSum(payload []byte) ([]byte, byte) {
	out := make([]byte, 0, len(payload)+8)
	var sum byte
	for _, b := range payload {
		if b == '$' || b == '#' || b == '*' || b == '}' {
			out = append(out, '}')
			sum += '}'
			b ^= 0x20
		}
		out = append(out, b)
		sum += b
	}
	return out, sum
}

// PutPkt sends p as a framed RSP packet, retransmitting on a nack
// indefinitely until acked or the transport fails.
func (c *Connection) PutPkt(p *packet) bool {
	wire, sum := escapeAndSum(p.data())
	frame := make([]byte, 0, len(wire)+4)
	frame = append(frame, '$')
	frame = append(frame, wire...)
	frame = append(frame, '#', hex2char(int(sum>>4)), hex2char(int(sum&0xf)))

	for {
		if _, err := c.transport.Write(frame); err != nil {
			return false
		}

		b, err := c.readByte()
		if err != nil {
			return false
		}
		if b == '+' {
			return true
		}
		if b == '-' {
			c.tracef("conn", "rsp: nack received, retransmitting")
			continue
		}
		c.tracef("conn", "rsp: unexpected ack byte 0x%02x, retransmitting", b)
	}
}

var errNotConnected = fmt.Errorf("rsp: transport not connected")
