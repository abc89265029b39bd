package core

import (
	"encoding/json"
	"testing"
)

func val(s string) StateValue {
	return NewStateValue(json.RawMessage(`"` + s + `"`))
}

func tsp(v int64) *int64 {
	return &v
}

func TestStoreVersionsEqualForSameContent(t *testing.T) {
	a := newStore()
	b := newStore()

	a.put("k1", Entry{Value: val("v1"), TS: tsp(100)})
	b.put("k1", Entry{Value: val("v1"), TS: tsp(100)})

	if a.versionHash(1000) != b.versionHash(1000) {
		t.Fatalf("expected equal versions for identical content")
	}
}

func TestStoreVersionsDifferForDifferentContent(t *testing.T) {
	a := newStore()
	b := newStore()

	a.put("k1", Entry{Value: val("v1"), TS: tsp(100)})
	b.put("k1", Entry{Value: val("v1"), TS: tsp(200)})

	if a.versionHash(1000) == b.versionHash(1000) {
		t.Fatalf("expected different versions for different timestamps")
	}
}

func TestStoreVersionOrderIndependent(t *testing.T) {
	a := newStore()
	b := newStore()

	a.put("k1", Entry{Value: val("v1"), TS: tsp(100)})
	a.put("k2", Entry{Value: val("v2"), TS: tsp(200)})

	b.put("k2", Entry{Value: val("v2"), TS: tsp(200)})
	b.put("k1", Entry{Value: val("v1"), TS: tsp(100)})

	if a.versionHash(1000) != b.versionHash(1000) {
		t.Fatalf("expected version to be independent of insertion order")
	}
}

func TestStoreMarksVersionDirtyOnWrite(t *testing.T) {
	s := newStore()
	s.put("k1", Entry{Value: val("v1"), TS: tsp(100)})
	v1 := s.versionHash(1000)

	s.put("k1", Entry{Value: val("v2"), TS: tsp(200)})
	v2 := s.versionHash(1000)

	if v1 == v2 {
		t.Fatalf("expected version to change after a newer write")
	}
}

func TestStorePurgeRemovesExpiredEntries(t *testing.T) {
	s := newStore()
	ttl := int64(10)
	s.put("expired", Entry{Value: val("v"), TS: tsp(0), TTL: &ttl})
	s.put("fresh", Entry{Value: val("v"), TS: tsp(1000)})

	removed := s.purge(1000)
	if removed != 1 {
		t.Fatalf("expected 1 entry purged, got %d", removed)
	}
	if _, ok := s.entries["expired"]; ok {
		t.Fatalf("expected expired entry to be gone")
	}
	if _, ok := s.entries["fresh"]; !ok {
		t.Fatalf("expected fresh entry to survive purge")
	}
}

func TestStoreGetExcludesExpiredValues(t *testing.T) {
	s := newStore()
	ttl := int64(10)
	s.put("k1", Entry{Value: val("v"), TS: tsp(0), TTL: &ttl})

	if _, ok := s.get("k1", 1000); ok {
		t.Fatalf("expected expired entry to be excluded from get")
	}
}

func TestStoreRootReturnsWholeLiveState(t *testing.T) {
	s := newStore()
	s.put("k1", Entry{Value: val("v1"), TS: tsp(100)})
	s.put("k2", Entry{Value: val("v2"), TS: tsp(200)})

	root := s.root(1000)
	if len(root) != 2 {
		t.Fatalf("expected 2 live entries, got %d", len(root))
	}
}

func TestStoreDiffIncludesSmallerTSAndOneSidedKeys(t *testing.T) {
	s := newStore()
	s.put("same", Entry{Value: val("v"), TS: tsp(100)})
	s.put("ahead", Entry{Value: val("local"), TS: tsp(200)})
	s.put("onlyHere", Entry{Value: val("v"), TS: tsp(50)})

	other := map[string]Entry{
		"same":      {Value: val("v"), TS: tsp(100)},
		"ahead":     {Value: val("remote"), TS: tsp(150)},
		"onlyThere": {Value: val("v"), TS: tsp(10)},
	}

	diff := s.diff(other, 1000)
	if _, ok := diff["same"]; ok {
		t.Fatalf("did not expect converged key in diff")
	}

	aheadEntry, ok := diff["ahead"]
	if !ok {
		t.Fatalf("expected the behind-side entry for a ts mismatch")
	}
	if b, _ := aheadEntry.Value.AsBytes(); string(b) != `"remote"` {
		t.Fatalf("expected the smaller-ts (remote) entry to win, got %s", b)
	}

	if _, ok := diff["onlyHere"]; !ok {
		t.Fatalf("expected a key present only locally to be included as-is")
	}
	if _, ok := diff["onlyThere"]; !ok {
		t.Fatalf("expected a key present only on the other side to be included as-is")
	}
}

func TestStorePutKeepsNewerOnConflict(t *testing.T) {
	s := newStore()
	s.put("k1", Entry{Value: val("new"), TS: tsp(200)})
	s.put("k1", Entry{Value: val("old"), TS: tsp(100)})

	e, ok := s.get("k1", 1000)
	if !ok {
		t.Fatalf("expected entry to be present")
	}
	b, _ := e.Value.AsBytes()
	if string(b) != `"new"` {
		t.Fatalf("expected newer write to win, got %s", b)
	}
}
