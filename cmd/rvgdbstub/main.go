// Command rvgdbstub runs a GDB remote serial protocol stub for a
// bare-metal RISC-V (RV32I) target, backed either by an in-process
// simulator or a real board reached over a serial debug UART.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rvdbg/gdbstub/internal/serialtarget"
	"github.com/rvdbg/gdbstub/internal/sim"
	"github.com/rvdbg/gdbstub/rsp"
)

type traceFlagList []string

func (t *traceFlagList) String() string { return fmt.Sprint([]string(*t)) }

func (t *traceFlagList) Set(value string) error {
	*t = append(*t, value)
	return nil
}

func main() {
	var (
		core      = flag.String("core", "sim", "target backend: sim or serial")
		device    = flag.String("device", "", "serial device path, required with -core serial")
		silent    = flag.Bool("silent", false, "suppress non-monitor diagnostic output")
		stdin     = flag.Bool("stdin", false, "use stdio transport instead of TCP")
		killExits = flag.Bool("kill-exits", false, "select EXIT_ON_KILL kill-behaviour (default RESET_ON_KILL)")
		vcdPath   = flag.String("vcd", "", "enable VCD tracing and write it to this path (default gdbserver.vcd)")
	)
	var traces traceFlagList
	flag.Var(&traces, "trace", "enable a named trace flag (repeatable)")
	flag.Parse()

	log.SetFlags(0)

	trace := rsp.NewTraceFlags()
	for _, name := range traces {
		if !trace.Set(name, true) {
			log.Fatalf("rvgdbstub: unknown trace flag %q (known: %v)", name, trace.Names())
		}
	}
	if *vcdPath != "" {
		trace.Set("vcd", true)
	}
	if *silent {
		// -silent mutes diagnostic logging only; "vcd" gates a
		// persisted trace file, not console output, so it survives.
		wantVCD := trace.Get("vcd")
		trace = rsp.NewTraceFlags()
		trace.Set("vcd", wantVCD)
	}

	target, cleanup, err := buildTarget(*core, *device, trace, *vcdPath)
	if err != nil {
		log.Fatalf("rvgdbstub: %v", err)
	}
	defer cleanup()

	transport, err := buildTransport(*stdin, flag.Arg(0))
	if err != nil {
		log.Fatalf("rvgdbstub: %v", err)
	}

	kill := rsp.ResetOnKill
	if *killExits {
		kill = rsp.ExitOnKill
	}

	conn := rsp.NewConnection(transport, trace)
	server := rsp.NewServer(conn, target, trace, rsp.ServerConfig{Kill: kill})

	if err := server.Run(); err != nil {
		log.Fatalf("rvgdbstub: %v", err)
	}
}

func buildTarget(core, device string, trace *rsp.TraceFlags, vcdPath string) (rsp.Target, func(), error) {
	switch core {
	case "sim", "":
		c := sim.New()
		if trace.Get("vcd") {
			path := vcdPath
			if path == "" {
				path = "gdbserver.vcd"
			}
			f, err := os.Create(path)
			if err != nil {
				return nil, nil, fmt.Errorf("create vcd file: %w", err)
			}
			c.EnableVCD(f)
			return c, func() { f.Close() }, nil
		}
		return c, func() {}, nil
	case "serial":
		if device == "" {
			return nil, nil, fmt.Errorf("-device is required with -core serial")
		}
		t, err := serialtarget.Open(device)
		if err != nil {
			return nil, nil, err
		}
		return t, func() { t.Terminate() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown -core %q (want sim or serial)", core)
	}
}

func buildTransport(stdin bool, portArg string) (rsp.Transport, error) {
	if stdin {
		return rsp.NewStdioTransport(os.Stdin, os.Stdout), nil
	}
	if portArg == "" {
		return nil, fmt.Errorf("a TCP port is required unless -stdin is given")
	}
	return rsp.NewTCPTransport(":" + portArg)
}
