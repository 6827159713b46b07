package local

import "time"

// SetNow replaces the clock of l.
func (l *Locker) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.now = now
}
