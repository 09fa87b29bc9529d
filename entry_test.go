package tiercache

import "testing"

func TestPriorityRank(t *testing.T) {
	t.Parallel()

	if PriorityLow.rank() >= PriorityNormal.rank() {
		t.Error("low must rank below normal")
	}
	if PriorityNormal.rank() >= PriorityHigh.rank() {
		t.Error("normal must rank below high")
	}
	if Priority("").rank() != PriorityNormal.rank() {
		t.Error("zero value must rank as normal")
	}
}

func TestPriorityNormalizeAndValid(t *testing.T) {
	t.Parallel()

	if got := Priority("").normalize(); got != PriorityNormal {
		t.Errorf("normalize(empty) = %q, want normal", got)
	}
	if got := PriorityHigh.normalize(); got != PriorityHigh {
		t.Errorf("normalize(high) = %q", got)
	}

	for _, p := range []Priority{"", PriorityLow, PriorityNormal, PriorityHigh} {
		if !p.valid() {
			t.Errorf("valid(%q) = false", p)
		}
	}
	if Priority("urgent").valid() {
		t.Error("valid(urgent) = true")
	}
}

func TestEntryExpired(t *testing.T) {
	t.Parallel()

	e := &Entry{ExpiresAt: 100}
	if e.expired(99) {
		t.Error("expired before the deadline")
	}
	if !e.expired(100) {
		t.Error("not expired at the deadline")
	}
	if !e.expired(101) {
		t.Error("not expired past the deadline")
	}

	forever := &Entry{}
	if forever.expired(1 << 62) {
		t.Error("entry without TTL expired")
	}
}

func TestEntryTouch(t *testing.T) {
	t.Parallel()

	e := &Entry{LastAccessedAt: 10}
	e.touch(50)
	e.touch(60)

	if e.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", e.AccessCount)
	}
	if e.LastAccessedAt != 60 {
		t.Errorf("LastAccessedAt = %d, want 60", e.LastAccessedAt)
	}
}

func TestEntryClone(t *testing.T) {
	t.Parallel()

	orig := &Entry{
		Key:     "k",
		Payload: []byte("abc"),
		Tags:    []string{"t"},
	}
	cp := orig.clone()

	cp.Payload[0] = 'X'
	cp.Tags[0] = "mutated"
	if string(orig.Payload) != "abc" {
		t.Error("clone shares the payload slice")
	}
	if orig.Tags[0] != "t" {
		t.Error("clone shares the tags slice")
	}
}

func TestEntryMeta(t *testing.T) {
	t.Parallel()

	orig := &Entry{
		Key:       "k",
		Payload:   []byte("abc"),
		SizeBytes: 3,
		Tags:      []string{"t"},
	}
	m := orig.meta()

	if m.Payload != nil {
		t.Error("meta kept the payload")
	}
	if m.Key != "k" || m.SizeBytes != 3 || len(m.Tags) != 1 {
		t.Errorf("meta = %+v, lost fields", m)
	}

	m.Tags[0] = "mutated"
	if orig.Tags[0] != "t" {
		t.Error("meta shares the tags slice")
	}
}
