package scheduler

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ent0n29/taskpal/internal/directive"
	"github.com/ent0n29/taskpal/internal/tasks"
)

// FormatRemaining renders d as "Xh Ym", floored to the minute and never negative.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", h, m)
}

func FormatAlert(t tasks.Task, remaining time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ Reminder: \"%s\" is due in %s", t.Title(), FormatRemaining(remaining))
	if t.DueTime != nil {
		fmt.Fprintf(&b, " (%s)", directive.FormatClock(*t.DueTime))
	}
	b.WriteString(".")
	if t.Note != nil && *t.Note != "" {
		fmt.Fprintf(&b, "\n🗒️ Note: %s", *t.Note)
	}
	return b.String()
}

// FormatDigest lists one owner's tasks for date in the order given.
func FormatDigest(date civil.Date, list []tasks.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Your tasks for tomorrow (%s):", date)
	for i, t := range list {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t.Title())
		if t.DueTime != nil {
			fmt.Fprintf(&b, " at %s", directive.FormatClock(*t.DueTime))
		}
		if t.Note != nil && *t.Note != "" {
			fmt.Fprintf(&b, " — %s", *t.Note)
		}
	}
	return b.String()
}
