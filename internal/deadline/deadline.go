// Package deadline answers "what if it were time T": for a hypothetical
// instant it reports, per process, whether that day's deadline still lies
// ahead.
package deadline

import (
	"fmt"
	"strings"
	"time"

	"procbot/internal/clock"
	"procbot/internal/storage"
)

type Item struct {
	Process   storage.Process
	Deadline  time.Time
	Remaining time.Duration
	// Passed is Remaining < 0. A deadline equal to the check instant has
	// not passed.
	Passed bool
	Delta  string
}

type Report struct {
	At    time.Time
	Items []Item
}

// Evaluate is pure: the result depends only on at and processes, in order.
func Evaluate(at time.Time, processes []storage.Process) Report {
	r := Report{At: at, Items: make([]Item, 0, len(processes))}
	for _, p := range processes {
		dl := clock.DeadlineInstant(at, p.Deadline)
		rem := dl.Sub(at)
		r.Items = append(r.Items, Item{
			Process:   p,
			Deadline:  dl,
			Remaining: rem,
			Passed:    rem < 0,
			Delta:     clock.HumanizeDelta(rem),
		})
	}
	return r
}

const NoProcessesText = "No processes to evaluate."

// Render formats the report as the chat reply.
func (r Report) Render() string {
	if len(r.Items) == 0 {
		return NoProcessesText
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Check at %s:", clock.FormatCheckInstant(r.At))
	for _, it := range r.Items {
		status := "✅ succeed, remaining " + it.Delta
		if it.Passed {
			status = "⚠️ deadline passed, " + it.Delta
		}
		fmt.Fprintf(&b, "\n• %s — deadline %s — %s", it.Process.Name, it.Process.Deadline, status)
	}
	return b.String()
}
