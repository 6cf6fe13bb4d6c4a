package kernel

import (
	"sync"
	"time"
)

// Kind colours a status line.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Status is one line of kernel progress.
type Status struct {
	Time    time.Time
	Message string
	Kind    Kind
}

// statusLog keeps the most recent lines.
type statusLog struct {
	mu    sync.Mutex
	lines []Status
	max   int
}

func newStatusLog(max int) *statusLog {
	if max <= 0 {
		max = 200
	}
	return &statusLog{max: max}
}

func (l *statusLog) add(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
	if over := len(l.lines) - l.max; over > 0 {
		l.lines = append([]Status(nil), l.lines[over:]...)
	}
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.lines...)
}
