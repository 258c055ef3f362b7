package pseudonym

import "testing"

func fixedAllocator(pseudo []byte) Allocator {
	return func(original []byte) []byte {
		return pseudo
	}
}

func TestLookupOrAllocateIsConsistent(t *testing.T) {
	s := New()
	calls := 0
	alloc := func(original []byte) []byte {
		calls++
		return []byte{0xAA, 0xBB, 0xCC, 0xDD}
	}

	original := []byte{1, 2, 3, 4}
	first := s.LookupOrAllocate(KindUID, original, alloc, nil)
	second := s.LookupOrAllocate(KindUID, original, alloc, nil)

	if calls != 1 {
		t.Fatalf("allocator called %d times, want 1", calls)
	}
	if string(first) != string(second) {
		t.Fatalf("inconsistent mapping: %v != %v", first, second)
	}
}

func TestLookupOrAllocateKindsAreIndependent(t *testing.T) {
	s := New()
	original := []byte{9, 9, 9, 9}

	uidPseudo := s.LookupOrAllocate(KindUID, original, fixedAllocator([]byte{1, 1, 1, 1}), nil)
	gidPseudo := s.LookupOrAllocate(KindGID, original, fixedAllocator([]byte{2, 2, 2, 2}), nil)

	if string(uidPseudo) == string(gidPseudo) {
		t.Fatal("uid and gid tables leaked into each other")
	}
	if s.Len(KindUID) != 1 || s.Len(KindGID) != 1 {
		t.Fatalf("Len: uid=%d gid=%d, want 1/1", s.Len(KindUID), s.Len(KindGID))
	}
	if s.Len(KindPID) != 0 {
		t.Fatalf("Len(KindPID) = %d, want 0", s.Len(KindPID))
	}
}

func TestLookupOrAllocateCallsOnNewOnceOnly(t *testing.T) {
	s := New()
	var entries []Entry
	onNew := func(e Entry) { entries = append(entries, e) }

	original := []byte{5, 5, 5, 5}
	alloc := fixedAllocator([]byte{6, 6, 6, 6})

	s.LookupOrAllocate(KindPath, original, alloc, onNew)
	s.LookupOrAllocate(KindPath, original, alloc, onNew)

	if len(entries) != 1 {
		t.Fatalf("onNew called %d times, want 1", len(entries))
	}
	if entries[0].Kind != KindPath {
		t.Errorf("Entry.Kind = %v, want KindPath", entries[0].Kind)
	}
	if entries[0].Entries != 1 {
		t.Errorf("Entry.Entries = %d, want 1", entries[0].Entries)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUID:  "uid",
		KindGID:  "gid",
		KindPID:  "pid",
		KindAddr: "addr",
		KindPath: "path",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
