package rsp

import "strings"

// traceFlagNames is the fixed vocabulary from spec §3: names outside
// this set are rejected by Set/IsFlag.
var traceFlagNames = []string{"rsp", "conn", "break", "vcd", "silent", "disas", "dflush"}

// TraceFlags is the named-boolean bitset (Component E) controlling
// diagnostic output. All name lookups are case-insensitive.
type TraceFlags struct {
	flags map[string]bool
}

// NewTraceFlags returns a TraceFlags with every known flag cleared.
func NewTraceFlags() *TraceFlags {
	t := &TraceFlags{flags: make(map[string]bool, len(traceFlagNames))}
	for _, name := range traceFlagNames {
		t.flags[name] = false
	}
	return t
}

// IsFlag reports whether name (case-insensitively) is a known flag.
func (t *TraceFlags) IsFlag(name string) bool {
	_, ok := t.flags[strings.ToLower(name)]
	return ok
}

// Set assigns value to the named flag. It returns false if name is not
// a known flag, leaving the set unchanged.
func (t *TraceFlags) Set(name string, value bool) bool {
	name = strings.ToLower(name)
	if _, ok := t.flags[name]; !ok {
		return false
	}
	t.flags[name] = value
	return true
}

// Get returns the current value of the named flag, or false if name is
// unknown.
func (t *TraceFlags) Get(name string) bool {
	return t.flags[strings.ToLower(name)]
}

// Names returns the known flag vocabulary in a stable order.
func (t *TraceFlags) Names() []string {
	out := make([]string, len(traceFlagNames))
	copy(out, traceFlagNames)
	return out
}
