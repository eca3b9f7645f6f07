// Package digest rolls the day's metric events into a short SMS for the
// program lead, the report the cooperative partners actually read.
package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/mamashield/internal/metrics"
)

// maxDigestLen keeps the digest inside two SMS segments.
const maxDigestLen = 300

// Summary is one day of event counts.
type Summary struct {
	Date   time.Time
	Total  int
	Counts map[string]int
}

// Summarize counts events by type. Events carry no user identifiers, so the
// digest is aggregate-only by construction.
func Summarize(events []metrics.Event, day time.Time) Summary {
	counts := make(map[string]int, len(events))
	total := 0
	for _, ev := range events {
		n := ev.Count
		if n <= 0 {
			n = 1
		}
		counts[ev.Type] += n
		total += n
	}
	return Summary{Date: day.UTC(), Total: total, Counts: counts}
}

// SMS renders the summary, highest counts first, dropping the tail rather
// than splitting a pair once the budget is reached.
func (s Summary) SMS() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MamaShield daily digest %s: %d events.", s.Date.Format("2006-01-02"), s.Total)
	if s.Total == 0 {
		return b.String()
	}

	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(s.Counts))
	for name, count := range s.Counts {
		pairs = append(pairs, pair{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})

	for i, p := range pairs {
		sep := " "
		if i > 0 {
			sep = ", "
		}
		part := fmt.Sprintf("%s%s:%d", sep, p.name, p.count)
		if b.Len()+len(part) > maxDigestLen {
			break
		}
		b.WriteString(part)
	}
	return b.String()
}
