package logger

import (
	"go.uber.org/zap"
)

// Tally collects repeated data-integrity warnings raised while exporting one
// mesh. Each occurrence is logged at debug level; Flush emits one warning per
// kind with the number of occurrences. A nil *Tally logs every warning
// directly through the global logger.
//
// A Tally is not safe for concurrent use.
type Tally struct {
	log    *zap.Logger
	order  []string
	counts map[string]int
	first  map[string][]zap.Field
}

// NewTally returns a tally reporting to l. A nil l uses the global logger.
func NewTally(l *zap.Logger) *Tally {
	if l == nil {
		l = Log
	}
	return &Tally{
		log:    l,
		counts: make(map[string]int),
		first:  make(map[string][]zap.Field),
	}
}

// Warn records one occurrence of a warning kind.
func (t *Tally) Warn(kind string, fields ...zap.Field) {
	if t == nil {
		Log.Warn(kind, fields...)
		return
	}
	if _, ok := t.counts[kind]; !ok {
		t.order = append(t.order, kind)
		t.first[kind] = fields
	}
	t.counts[kind]++
	t.log.Debug(kind, fields...)
}

// Count returns how often a kind was recorded since the last flush.
func (t *Tally) Count(kind string) int {
	if t == nil {
		return 0
	}
	return t.counts[kind]
}

// Total returns the number of warnings recorded since the last flush.
func (t *Tally) Total() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

// Kinds returns the recorded kinds in first-seen order.
func (t *Tally) Kinds() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.order...)
}

// Flush logs one warning per recorded kind, with the count and the fields of
// the first occurrence, and resets the tally.
func (t *Tally) Flush() {
	if t == nil {
		return
	}
	for _, kind := range t.order {
		fields := append([]zap.Field{zap.Int("count", t.counts[kind])}, t.first[kind]...)
		t.log.Warn(kind, fields...)
	}
	t.order = nil
	t.counts = make(map[string]int)
	t.first = make(map[string][]zap.Field)
}
