package tiercache

// Priority influences eviction order within a tier. Lower priorities are
// evicted first; recency only breaks ties between equal priorities.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// rank maps a priority to its eviction rank. Lower ranks evict first.
// The zero value ranks as PriorityNormal.
func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// normalize maps the zero value to PriorityNormal so stored entries always
// carry an explicit priority.
func (p Priority) normalize() Priority {
	if p == "" {
		return PriorityNormal
	}
	return p
}

func (p Priority) valid() bool {
	switch p {
	case "", PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// Entry is the unit stored in a tier: the encoded payload plus the metadata
// the eviction engine and sweeper operate on. Timestamps are Unix
// nanoseconds; ExpiresAt == 0 means the entry never expires.
type Entry struct {
	Key            string
	Payload        []byte
	Compressed     bool
	SizeBytes      int64
	ExpiresAt      int64
	Priority       Priority
	Tags           []string
	AccessCount    int64
	LastAccessedAt int64
	CreatedAt      int64
}

// expired reports whether the entry's TTL has elapsed at the given time.
func (e *Entry) expired(now int64) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt <= now
}

// touch records a read for recency-based eviction.
func (e *Entry) touch(now int64) {
	e.AccessCount++
	e.LastAccessedAt = now
}

// meta returns a copy without the payload, for eviction and sweep scans
// that only need metadata.
func (e *Entry) meta() *Entry {
	cp := *e
	cp.Payload = nil
	if e.Tags != nil {
		cp.Tags = make([]string, len(e.Tags))
		copy(cp.Tags, e.Tags)
	}
	return &cp
}

// clone returns a deep copy. Stores hand out copies so callers cannot
// mutate resident entries.
func (e *Entry) clone() *Entry {
	cp := *e
	if e.Payload != nil {
		cp.Payload = make([]byte, len(e.Payload))
		copy(cp.Payload, e.Payload)
	}
	if e.Tags != nil {
		cp.Tags = make([]string, len(e.Tags))
		copy(cp.Tags, e.Tags)
	}
	return &cp
}
