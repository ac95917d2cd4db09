package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lonelysadness/proconn/pkg/proconn"
)

// ANSI color constants
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
)

const maxActivity = 15 // Maximum number of activity lines to display

type Activity struct {
	Kind      proconn.Kind
	Message   string
	Timestamp time.Time
}

// Terminal keeps a summary of recent process activity and redraws it.
type Terminal struct {
	mu         sync.Mutex
	out        io.Writer
	counts     map[proconn.Kind]uint64
	activities []Activity
	sinceBoot  time.Duration
	now        func() time.Time
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		out:        out,
		counts:     make(map[proconn.Kind]uint64, len(proconn.Kinds)),
		activities: make([]Activity, 0, maxActivity),
		now:        time.Now,
	}
}

// Record counts ev and puts it on top of the activity log. detail, if not
// empty, is appended to the event line.
func (t *Terminal) Record(ev proconn.Event, detail string) {
	msg := FormatEvent(ev)
	if detail != "" {
		msg += " " + detail
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[ev.Kind()]++
	t.sinceBoot = ev.Meta().SinceBoot()
	t.activities = append([]Activity{{
		Kind:      ev.Kind(),
		Message:   msg,
		Timestamp: t.now(),
	}}, t.activities...)
	if len(t.activities) > maxActivity {
		t.activities = t.activities[:maxActivity]
	}
}

// Count returns how many events of kind were recorded.
func (t *Terminal) Count(kind proconn.Kind) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[kind]
}

func (t *Terminal) Display() {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.out, "\033[H\033[2J")

	now := t.now()
	fmt.Fprintf(t.out, "=== %sproconn%s - %s%s%s ===\n\n",
		colorCyan, colorReset, colorYellow, now.Format("15:04:05"), colorReset)

	fmt.Fprintf(t.out, "%sEvent Counters%s", colorPurple, colorReset)
	if t.sinceBoot > 0 {
		fmt.Fprintf(t.out, " (last event %s after boot)", t.sinceBoot.Truncate(time.Second))
	}
	fmt.Fprintln(t.out)
	for i, k := range proconn.Kinds {
		prefix := "├─"
		if i == len(proconn.Kinds)-1 {
			prefix = "└─"
		}
		fmt.Fprintf(t.out, "%s %s%-9s%s %s\n",
			prefix, kindColor(k), k, colorReset, humanize.Comma(int64(t.counts[k])))
	}
	fmt.Fprintln(t.out)

	fmt.Fprintf(t.out, "%sProcess Activity Log%s\n", colorBlue, colorReset)
	if len(t.activities) == 0 {
		fmt.Fprintf(t.out, "└─ %sNo recent activity%s\n", colorYellow, colorReset)
	} else {
		for i, act := range t.activities {
			prefix := "├─"
			if i == len(t.activities)-1 {
				prefix = "└─"
			}
			fmt.Fprintf(t.out, "%s %s[%s]%s [%s] %s\n",
				prefix,
				kindColor(act.Kind), act.Kind, colorReset,
				humanize.RelTime(act.Timestamp, now, "ago", "from now"), act.Message)
		}
	}

	fmt.Fprintf(t.out, "\n%s=== Press Ctrl+C to exit ===%s\n",
		colorYellow, colorReset)
}

func kindColor(k proconn.Kind) string {
	switch k {
	case proconn.KindFork, proconn.KindExec:
		return colorGreen
	case proconn.KindExit:
		return colorCyan
	case proconn.KindCoredump, proconn.KindPtrace:
		return colorRed
	case proconn.KindUID, proconn.KindGID, proconn.KindSID:
		return colorPurple
	default:
		return colorYellow
	}
}
