package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultRecentCapacity = 500
	maxRecentPageSize     = 200
)

// RecentEntry is a retained log line, already sanitized.
type RecentEntry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// RecentLogs keeps the last warnings and errors in memory so operators can
// see failed triggers and rejected payouts without shell access.
type RecentLogs struct {
	mu       sync.RWMutex
	entries  []RecentEntry
	capacity int
	next     int
	count    int
	seq      int64
	minLevel zapcore.Level
}

func NewRecentLogs(capacity int, minLevel zapcore.Level) *RecentLogs {
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &RecentLogs{
		entries:  make([]RecentEntry, capacity),
		capacity: capacity,
		minLevel: minLevel,
	}
}

// Tee returns base with an extra core that feeds r.
func (r *RecentLogs) Tee(base *zap.Logger) *zap.Logger {
	if base == nil || r == nil {
		return base
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, &recentCore{LevelEnabler: r.minLevel, logs: r})
	}))
}

// Query returns matching entries newest first, and the total match count.
func (r *RecentLogs) Query(level, keyword string, since time.Time, page, pageSize int) ([]RecentEntry, int64) {
	if r == nil {
		return nil, 0
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > maxRecentPageSize {
		pageSize = maxRecentPageSize
	}

	level = strings.TrimSpace(level)
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	matched := make([]RecentEntry, 0)
	for _, entry := range r.newestFirst() {
		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		if !since.IsZero() && entry.Timestamp.Before(since.UTC()) {
			continue
		}
		if keyword != "" && !entryMatches(entry, keyword) {
			continue
		}
		matched = append(matched, entry)
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []RecentEntry{}, total
	}
	end := min(start+pageSize, len(matched))
	return matched[start:end], total
}

func entryMatches(entry RecentEntry, keyword string) bool {
	if strings.Contains(strings.ToLower(entry.Message), keyword) {
		return true
	}
	return len(entry.Fields) > 0 && strings.Contains(strings.ToLower(fmt.Sprint(entry.Fields)), keyword)
}

func (r *RecentLogs) add(entry zapcore.Entry, fields []zapcore.Field) {
	item := RecentEntry{
		Timestamp: entry.Time.UTC(),
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Caller:    entry.Caller.TrimmedPath(),
		Fields:    fieldMap(SanitizeFields(fields)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	item.ID = r.seq
	r.entries[r.next] = item
	r.next = (r.next + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

func (r *RecentLogs) newestFirst() []RecentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]RecentEntry, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.next - 1 - i + r.capacity) % r.capacity
		result = append(result, r.entries[idx])
	}
	return result
}

func fieldMap(fields []zapcore.Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}
	return enc.Fields
}

type recentCore struct {
	zapcore.LevelEnabler
	logs   *RecentLogs
	fields []zapcore.Field
}

func (c *recentCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &recentCore{LevelEnabler: c.LevelEnabler, logs: c.logs, fields: merged}
}

func (c *recentCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *recentCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := fields
	if len(c.fields) > 0 {
		all = append(append(make([]zapcore.Field, 0, len(c.fields)+len(fields)), c.fields...), fields...)
	}
	c.logs.add(entry, all)
	return nil
}

func (c *recentCore) Sync() error { return nil }
