package rsp

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// monitorWriter adapts the Server's O-hex output channel to an
// io.Writer so Target.Command can stream text back to GDB the same
// way the dispatcher's own monitor commands do.
type monitorWriter struct {
	s *Server
}

func (w *monitorWriter) Write(p []byte) (int, error) {
	if !w.s.sendMonitorOutput(string(p)) {
		return 0, fmt.Errorf("rsp: connection closed while streaming monitor output")
	}
	return len(p), nil
}

func (s *Server) sendMonitorOutput(text string) bool {
	s.pkt.packHexstr(text)
	return s.conn.PutPkt(s.pkt)
}

func (s *Server) monitorLineThenOK(text string) bool {
	if !s.sendMonitorOutput(text) {
		return false
	}
	return s.replyOK()
}

// handleMonitor implements the "qRcmd,<hex>" sub-protocol (spec §4.G
// "monitor sub-protocol").
func (s *Server) handleMonitor(hexPayload string) bool {
	cmd := string(hex2ascii([]byte(hexPayload)))
	tokens := split(cmd, " \t")
	if len(tokens) == 0 {
		return s.replyOK()
	}

	switch tokens[0] {
	case "help":
		return s.monitorHelp()
	case "reset":
		kind := ResetWarm
		if len(tokens) > 1 && tokens[1] == "cold" {
			kind = ResetCold
		}
		if !s.target.Reset(kind) {
			log.Fatalf("rsp: target reset failed, terminating")
		}
		return s.replyOK()
	case "exit":
		log.Printf("rsp: monitor exit received, terminating")
		s.target.Terminate()
		clearInstalledTarget()
		s.exitFunc(0)
		return true
	case "timeout":
		if len(tokens) < 2 {
			return s.replyErr(1)
		}
		secs, err := strconv.ParseFloat(tokens[1], 64)
		if err != nil {
			return s.replyErr(1)
		}
		s.userTimeout = secs
		s.userTimeoutSet = true
		return s.replyOK()
	case "cyclecount":
		return s.monitorLineThenOK(fmt.Sprintf("%d\n", s.target.CycleCount()))
	case "instrcount":
		return s.monitorLineThenOK(fmt.Sprintf("%d\n", s.target.InstrCount()))
	case "timestamp":
		return s.monitorLineThenOK(fmt.Sprintf("%g\n", s.target.TimeStamp()))
	case "echo":
		fmt.Println(strings.TrimPrefix(cmd, "echo "))
		return s.replyOK()
	case "set":
		return s.monitorSetDebug(tokens[1:])
	case "show":
		if len(tokens) > 1 && tokens[1] == "debug" {
			return s.monitorShowDebug()
		}
		return s.replyErr(1)
	default:
		return s.monitorDelegate(cmd)
	}
}

func (s *Server) monitorHelp() bool {
	lines := []string{
		"reset [warm|cold]          - reset the target",
		"timeout <seconds>          - bound continue wall time",
		"cyclecount                 - show target cycle count",
		"instrcount                 - show target instruction count",
		"timestamp                  - show simulated time",
		"echo <text>                - print text to the host console",
		"set debug <flag> <on|off>  - toggle a trace flag",
		"show debug                 - list current trace flag settings",
		"exit                       - terminate the server",
	}
	for _, line := range lines {
		if !s.sendMonitorOutput(line + "\n") {
			return false
		}
	}
	s.target.Command("help", &monitorWriter{s})
	return s.replyOK()
}

func (s *Server) monitorSetDebug(tokens []string) bool {
	if len(tokens) < 3 || tokens[0] != "debug" {
		return s.replyErr(1)
	}
	flagName := tokens[1]
	if !s.trace.IsFlag(flagName) {
		return s.replyErr(1)
	}
	val, ok := parseBoolToken(tokens[2])
	if !ok {
		return s.replyErr(2)
	}
	s.trace.Set(flagName, val)
	return s.replyOK()
}

func parseBoolToken(tok string) (bool, bool) {
	switch strings.ToLower(tok) {
	case "0", "off", "false":
		return false, true
	case "1", "on", "true":
		return true, true
	default:
		return false, false
	}
}

func (s *Server) monitorShowDebug() bool {
	var sb strings.Builder
	for _, name := range s.trace.Names() {
		fmt.Fprintf(&sb, "%s=%v\n", name, s.trace.Get(name))
	}
	return s.monitorLineThenOK(sb.String())
}

// monitorDelegate hands an unrecognized monitor command to the target.
// E04 distinguishes "target didn't handle it" from the E01 used for
// malformed monitor syntax elsewhere in this file.
func (s *Server) monitorDelegate(cmd string) bool {
	if s.target.Command(cmd, &monitorWriter{s}) {
		return s.replyOK()
	}
	return s.replyErr(4)
}
