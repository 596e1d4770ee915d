// Package transcript folds incremental transcript events into a display log.
package transcript

import "sync"

// Event is a single transcription result received from the backend.
type Event struct {
	Text    string
	IsFinal bool
}

// Log is an ordered list of committed lines, optionally followed by one
// pending line. When Pending is true the last element of Lines is the
// pending line.
type Log struct {
	Lines   []string `json:"lines"`
	Pending bool     `json:"pending"`
}

// Committed returns the number of committed lines.
func (l Log) Committed() int {
	if l.Pending {
		return len(l.Lines) - 1
	}
	return len(l.Lines)
}

// Last returns the last line, if any.
func (l Log) Last() (string, bool) {
	if len(l.Lines) == 0 {
		return "", false
	}
	return l.Lines[len(l.Lines)-1], true
}

// Apply returns the log that results from folding ev into l. l is not
// modified.
//
// A non-final event replaces the pending line, or opens one after the last
// committed line. A final event commits: it takes the pending line's place
// if there is one and is appended otherwise.
func Apply(l Log, ev Event) Log {
	lines := make([]string, len(l.Lines), len(l.Lines)+1)
	copy(lines, l.Lines)

	if l.Pending && len(lines) > 0 {
		lines[len(lines)-1] = ev.Text
	} else {
		lines = append(lines, ev.Text)
	}

	return Log{Lines: lines, Pending: !ev.IsFinal}
}

// Accumulator holds a Log that is updated as events arrive and notifies
// subscribers of every change.
type Accumulator struct {
	mu   sync.Mutex
	log  Log
	subs map[chan Log]struct{}
}

func NewAccumulator() *Accumulator {
	return &Accumulator{subs: make(map[chan Log]struct{})}
}

// Apply folds ev into the log and returns the new snapshot.
func (a *Accumulator) Apply(ev Event) Log {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.log = Apply(a.log, ev)
	for ch := range a.subs {
		// Slow subscribers only need the latest snapshot.
		select {
		case <-ch:
		default:
		}
		ch <- a.log
	}
	return a.log
}

// Snapshot returns the current log.
func (a *Accumulator) Snapshot() Log {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.log
}

// Subscribe returns a channel that receives the latest log after every
// change, and a function that unsubscribes it.
func (a *Accumulator) Subscribe() (<-chan Log, func()) {
	ch := make(chan Log, 1)

	a.mu.Lock()
	a.subs[ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, ch)
			a.mu.Unlock()
		})
	}
}
