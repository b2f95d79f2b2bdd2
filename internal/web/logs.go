package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogEntry is one captured log line. Subsystem is the "name:" prefix the
// packages log with ("motion", "ctrl", "sensor", ...), or "" when the line
// has none.
type LogEntry struct {
	Subsystem string `json:"subsystem,omitempty"`
	Line      string `json:"line"`
}

// LogBuffer is an io.Writer for the log package that keeps the most recent
// lines for /api/logs.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []LogEntry
	pending []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write splits p into lines. A trailing fragment without a newline is held
// until the next Write completes it.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, p...)
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		b.addLocked(string(b.pending[:i]))
		b.pending = b.pending[i+1:]
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return len(p), nil
}

func (b *LogBuffer) addLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	b.entries = append(b.entries, LogEntry{Subsystem: subsystemOf(line), Line: line})
	if over := len(b.entries) - b.max; over > 0 {
		b.entries = b.entries[over:]
		b.dropped += uint64(over)
	}
}

// subsystemOf finds the "name:" tag after the optional date and time the
// log package prepends.
func subsystemOf(line string) string {
	for _, f := range strings.Fields(line) {
		if isLogStamp(f) {
			continue
		}
		name, ok := strings.CutSuffix(f, ":")
		if !ok || name == "" {
			return ""
		}
		for _, r := range name {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				return ""
			}
		}
		return name
	}
	return ""
}

// isLogStamp matches the 2006/01/02 and 15:04:05[.000000] fields.
func isLogStamp(f string) bool {
	if f == "" || f[0] < '0' || f[0] > '9' {
		return false
	}
	for _, r := range f {
		if (r < '0' || r > '9') && r != '/' && r != ':' && r != '.' {
			return false
		}
	}
	return true
}

// Tail returns up to n of the newest entries, optionally limited to the
// given subsystems, plus the count of lines pushed out of the buffer.
func (b *LogBuffer) Tail(n int, subsystems ...string) ([]LogEntry, uint64) {
	want := make(map[string]bool, len(subsystems))
	for _, s := range subsystems {
		if s = strings.TrimSpace(s); s != "" {
			want[s] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		n = 200
	}
	var out []LogEntry
	for i := len(b.entries) - 1; i >= 0 && len(out) < n; i-- {
		if len(want) > 0 && !want[b.entries[i].Subsystem] {
			continue
		}
		out = append(out, b.entries[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, b.dropped
}

type LogsResponse struct {
	NowUTC  string     `json:"now_utc"`
	Dropped uint64     `json:"dropped"`
	Entries []LogEntry `json:"entries"`
}

// Handler serves GET /api/logs?tail=N&subsystem=motion,ctrl[&format=text].
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		tail := 200
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}
		var subs []string
		if s := q.Get("subsystem"); s != "" {
			subs = strings.Split(s, ",")
		}

		entries, dropped := b.Tail(tail, subs...)
		if entries == nil {
			entries = []LogEntry{}
		}
		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, e := range entries {
				_, _ = fmt.Fprintln(w, e.Line)
			}
			return
		}
		writeJSON(w, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Entries: entries,
		})
	})
}
