package rsp

import "testing"

func TestMatchpointTableAddLookupRemove(t *testing.T) {
	mt := newMatchpointTable()

	if !mt.add(SWBreak, 0x1000, []byte{1, 2, 3, 4}) {
		t.Fatalf("add on fresh key should succeed")
	}
	if mt.add(SWBreak, 0x1000, []byte{5, 6, 7, 8}) {
		t.Fatalf("add on existing key should fail")
	}

	got, ok := mt.lookup(SWBreak, 0x1000)
	if !ok || string(got) != "\x01\x02\x03\x04" {
		t.Fatalf("lookup = %v, %v; want original bytes", got, ok)
	}

	if _, ok := mt.lookup(SWBreak, 0x2000); ok {
		t.Fatalf("lookup of absent key should report false")
	}

	removed, ok := mt.remove(SWBreak, 0x1000)
	if !ok || string(removed) != "\x01\x02\x03\x04" {
		t.Fatalf("remove = %v, %v; want original bytes", removed, ok)
	}

	if _, ok := mt.remove(SWBreak, 0x1000); ok {
		t.Fatalf("second remove of same key should report false")
	}
}

func TestMatchpointTableKindsAreDistinctKeys(t *testing.T) {
	mt := newMatchpointTable()
	mt.add(SWBreak, 0x1000, []byte{0xaa})
	if !mt.add(HWBreak, 0x1000, []byte{0xbb}) {
		t.Fatalf("same address with different kind should be a distinct key")
	}
}

func TestMatchpointKindString(t *testing.T) {
	cases := map[MatchpointKind]string{
		SWBreak:     "SW_BREAK",
		HWBreak:     "HW_BREAK",
		WatchWrite:  "WATCH_WRITE",
		WatchRead:   "WATCH_READ",
		WatchAccess: "WATCH_ACCESS",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
