package service

import "sync"

// opLog is a bounded ring buffer of recent dispatch operations, owned by the
// Dispatcher and consulted only for slow-group diagnostics.
type opLog struct {
	mu      sync.Mutex
	entries []string
	next    int
	filled  bool
}

func newOpLog(capacity int) *opLog {
	return &opLog{entries: make([]string, capacity)}
}

func (l *opLog) Record(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = entry
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.filled = true
	}
}

// Recent returns up to n entries, oldest first.
func (l *opLog) Recent(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.filled {
		size = len(l.entries)
	}
	if n > size {
		n = size
	}

	out := make([]string, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if l.filled {
			idx = (l.next + len(l.entries) - size + i) % len(l.entries)
		}
		out = append(out, l.entries[idx])
	}
	return out
}
