package insights

import (
	"sort"

	"github.com/gustavo/insight-cli/internal/model"
)

// Stats summarizes a cache snapshot for the dashboard-style consumers.
type Stats struct {
	Total     int           `json:"total"`
	Tokens    int           `json:"tokens"`
	Market    int           `json:"market"`
	TopCaller string        `json:"top_caller,omitempty"`
	ByDay     []BucketCount `json:"by_day,omitempty"`
}

type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
}

// Summarize computes totals, the most-seen token caller and per-day counts
// from a snapshot.
func Summarize(entries []Cached) Stats {
	stats := Stats{Total: len(entries)}
	senders := map[string]int{}
	days := map[string]int{}

	for _, entry := range entries {
		switch in := entry.Insight.(type) {
		case model.TokenInsight:
			stats.Tokens++
			if in.Sender != "" {
				senders[in.Sender]++
			}
		case model.MarketInsight:
			stats.Market++
		}
		if ts := entry.Insight.SeenAt(); !ts.IsZero() {
			days[ts.UTC().Format("2006-01-02")]++
		}
	}

	best := 0
	for sender, count := range senders {
		if count > best || (count == best && sender < stats.TopCaller) {
			best = count
			stats.TopCaller = sender
		}
	}

	for day, count := range days {
		stats.ByDay = append(stats.ByDay, BucketCount{Bucket: day, Count: count})
	}
	sort.Slice(stats.ByDay, func(i, j int) bool { return stats.ByDay[i].Bucket < stats.ByDay[j].Bucket })
	return stats
}
