package model

import (
	"encoding/json"
	"time"
)

// Kind discriminates the two insight variants carried by the upstream feed.
type Kind string

const (
	KindToken  Kind = "token"
	KindMarket Kind = "market"
)

// Insight is a polymorphic feed record: a tracked token call or a tracked
// social post. Identity is the reconciliation join key and is unique within
// one fetch batch.
type Insight interface {
	Identity() string
	Kind() Kind
	SeenAt() time.Time
}

// TokenInsight describes a tracked token. Identity is the contract coin type.
type TokenInsight struct {
	Contract        string `json:"contract"`
	Sender          string `json:"sender"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Price           string `json:"price"`
	PriceChange24h  string `json:"price_change_24h"`
	TotalSupply     string `json:"total_supply"`
	Holders         string `json:"holders"`
	MarketCap       string `json:"market_cap"`
	Top10HoldersPct string `json:"top_10_holders_percentage"`
	Verified        bool   `json:"verified"`
	ScamFlag        string `json:"scam_flag"`
	Timestamp       string `json:"timestamp"`
	Source          string `json:"source"`
}

func (t TokenInsight) Identity() string { return t.Contract }

func (t TokenInsight) Kind() Kind { return KindToken }

func (t TokenInsight) SeenAt() time.Time { return parseTimestamp(t.Timestamp) }

// MarketInsight describes a tracked social post. Identity is the tweet id.
type MarketInsight struct {
	TweetID   string `json:"tweet_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Summary   string `json:"summary"`
	TweetLink string `json:"tweet_link"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

func (m MarketInsight) Identity() string { return m.TweetID }

func (m MarketInsight) Kind() Kind { return KindMarket }

func (m MarketInsight) SeenAt() time.Time { return parseTimestamp(m.Timestamp) }

// DecodeBatch decodes a feed payload into typed insights. Records that carry
// neither identity field are dropped; the reconciliation layer only accepts
// well-formed variants.
func DecodeBatch(data []byte) ([]Insight, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make([]Insight, 0, len(raw))
	for _, item := range raw {
		var probe struct {
			TweetID  string `json:"tweet_id"`
			Contract string `json:"contract"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			continue
		}
		switch {
		case probe.TweetID != "":
			var m MarketInsight
			if err := json.Unmarshal(item, &m); err == nil {
				out = append(out, m)
			}
		case probe.Contract != "":
			var t TokenInsight
			if err := json.Unmarshal(item, &t); err == nil {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func parseTimestamp(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}
