package rsp

import (
	"io"
)

// stdioTransport proxies the RSP connection over a pair of byte
// streams, normally os.Stdin/os.Stdout, for the "-stdin" CLI mode.
type stdioTransport struct {
	r         io.Reader
	w         io.Writer
	connected bool
	closed    bool
}

// NewStdioTransport creates a Transport that treats a single pipe of
// in/out streams as an already-connected peer. Connect returns an
// error once Close has been called, since stdin/stdout cannot be
// reopened for a new client.
func NewStdioTransport(r io.Reader, w io.Writer) Transport {
	return &stdioTransport{r: r, w: w}
}

func (t *stdioTransport) Connect() error {
	if t.closed {
		return errNotConnected
	}
	t.connected = true
	return nil
}

func (t *stdioTransport) Close() error {
	t.connected = false
	t.closed = true
	return nil
}

func (t *stdioTransport) IsConnected() bool {
	return t.connected
}

func (t *stdioTransport) Read(p []byte) (int, error) {
	if !t.connected {
		return 0, errNotConnected
	}
	return t.r.Read(p)
}

func (t *stdioTransport) Write(p []byte) (int, error) {
	if !t.connected {
		return 0, errNotConnected
	}
	return t.w.Write(p)
}
