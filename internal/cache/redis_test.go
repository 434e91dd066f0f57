package cache

import (
	"strconv"
	"testing"
	"time"

	"github.com/sentrydns/classifierd/internal/domain"
)

// These tests exercise the wire-encoding helpers (entry key building, hash
// field decoding, integer<->name mapping) in isolation, without a live
// Redis connection. The EVAL scripts and the RedisStore methods that run
// them need a live backend and are not exercised by any test here; the
// internal/reporter and internal/ingest tests run the same Store contract
// against the in-memory internal/testutil.MemStore double instead.

func TestEntryKey(t *testing.T) {
	if got, want := entryKey("example.com"), "entries:example.com"; got != want {
		t.Errorf("entryKey = %q, want %q", got, want)
	}
}

func TestStatusActionNameRoundTrip(t *testing.T) {
	for s := domain.StatusFake; s <= domain.StatusFull; s++ {
		wire := statusName(strconv.Itoa(int(s)))
		if _, ok := domain.ParseStatus(wire); !ok {
			t.Errorf("statusName(%d) = %q, not a valid status name", s, wire)
		}
	}
	for a := domain.ActionDrop; a <= domain.ActionPermit; a++ {
		wire := actionName(strconv.Itoa(int(a)))
		if _, ok := domain.ParseAction(wire); !ok {
			t.Errorf("actionName(%d) = %q, not a valid action name", a, wire)
		}
	}
	if statusName("7") != "7" {
		t.Error("statusName should pass through unrecognized values unchanged")
	}
}

func TestDecodeEntryRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fields := map[string]string{
		"domain":        "example.com",
		"status":        "1",
		"action":        "0",
		"query_count":   "42",
		"last_updated":  strconv.Itoa(int(now.Unix())),
		"last_accessed": strconv.Itoa(int(now.Unix())),
		"ttl":           "600",
	}
	entry, err := decodeEntry(fields)
	if err != nil {
		t.Fatalf("decodeEntry: %v", err)
	}
	if entry.Domain != "example.com" || entry.Status != domain.StatusPend || entry.Action != domain.ActionDrop {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.QueryCount != 42 {
		t.Errorf("QueryCount = %d, want 42", entry.QueryCount)
	}
	if entry.TTL != 600*time.Second {
		t.Errorf("TTL = %s, want 600s", entry.TTL)
	}
}

func TestDecodeEntryRejectsMalformedFields(t *testing.T) {
	cases := []map[string]string{
		{"status": "bogus", "action": "0", "query_count": "1", "last_updated": "1", "last_accessed": "1", "ttl": "1"},
		{"status": "0", "action": "bogus", "query_count": "1", "last_updated": "1", "last_accessed": "1", "ttl": "1"},
		{"status": "0", "action": "0", "query_count": "notanumber", "last_updated": "1", "last_accessed": "1", "ttl": "1"},
	}
	for i, fields := range cases {
		if _, err := decodeEntry(fields); err == nil {
			t.Errorf("case %d: expected error, got nil", i)
		}
	}
}

func TestDecodeMetaRejectsWrongShape(t *testing.T) {
	if _, ok := decodeMeta([]interface{}{"0", "1"}); ok {
		t.Error("expected decodeMeta to reject a 2-element slice")
	}
	if _, ok := decodeMeta([]interface{}{"0", "1", "not-a-number"}); ok {
		t.Error("expected decodeMeta to reject a non-numeric query_count")
	}
}

func TestDecodeMetaAccepts(t *testing.T) {
	meta, ok := decodeMeta([]interface{}{"2", "1", "7"})
	if !ok {
		t.Fatal("expected decodeMeta to succeed")
	}
	if meta.Status != domain.StatusFull || meta.Action != domain.ActionPermit || meta.QueryCount != 7 {
		t.Errorf("unexpected meta: %+v", meta)
	}
}
