package insights

import (
	"reflect"
	"testing"

	"github.com/gustavo/insight-cli/internal/model"
)

func TestSummarize(t *testing.T) {
	entries := []Cached{
		{Insight: model.TokenInsight{Contract: "0x2::a::A", Sender: "bob", Timestamp: "2026-08-30T10:00:00Z"}},
		{Insight: model.TokenInsight{Contract: "0x2::b::B", Sender: "alice", Timestamp: "2026-08-30T12:00:00Z"}},
		{Insight: model.TokenInsight{Contract: "0x2::c::C", Sender: "alice", Timestamp: "2026-08-31T09:00:00Z"}},
		{Insight: model.MarketInsight{TweetID: "9", Timestamp: "2026-08-31T09:30:00Z"}},
	}

	got := Summarize(entries)

	if got.Total != 4 || got.Tokens != 3 || got.Market != 1 {
		t.Fatalf("counts = %+v", got)
	}
	if got.TopCaller != "alice" {
		t.Fatalf("TopCaller = %q, want alice", got.TopCaller)
	}
	wantDays := []BucketCount{
		{Bucket: "2026-08-30", Count: 2},
		{Bucket: "2026-08-31", Count: 2},
	}
	if !reflect.DeepEqual(got.ByDay, wantDays) {
		t.Fatalf("ByDay = %v, want %v", got.ByDay, wantDays)
	}
}

func TestSummarizeTieBreaksAlphabetically(t *testing.T) {
	entries := []Cached{
		{Insight: model.TokenInsight{Contract: "0x2::a::A", Sender: "zoe"}},
		{Insight: model.TokenInsight{Contract: "0x2::b::B", Sender: "amy"}},
	}
	if got := Summarize(entries); got.TopCaller != "amy" {
		t.Fatalf("TopCaller = %q, want amy", got.TopCaller)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	if got.Total != 0 || got.TopCaller != "" || got.ByDay != nil {
		t.Fatalf("empty summary = %+v", got)
	}
}
