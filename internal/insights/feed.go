package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/httpx"
	"github.com/gustavo/insight-cli/internal/model"
)

const emptyUpstreamMessage = "No insights available"

// Feed is the remote insights source client.
type Feed struct {
	http    *httpx.Client
	baseURL string
}

func NewFeed(client *httpx.Client, baseURL string) *Feed {
	return &Feed{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Fetch retrieves the current insight batch. The upstream signals a valid
// empty state with a {"message": "No insights available"} body; that is
// reported as an empty batch, not an error.
func (f *Feed) Fetch(ctx context.Context) ([]model.Insight, error) {
	body, err := f.http.GetJSON(ctx, http.MethodGet, f.baseURL+"/insights", nil)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "insights feed returned empty body")
	}

	if trimmed[0] == '[' {
		batch, err := model.DecodeBatch(trimmed)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "decode insights payload", err)
		}
		return batch, nil
	}

	var notice struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(trimmed, &notice); err == nil && notice.Message == emptyUpstreamMessage {
		return []model.Insight{}, nil
	}
	return nil, clierr.New(clierr.CodeUnavailable, "insights feed returned unexpected payload")
}

// Delete removes one insight upstream by identity.
func (f *Feed) Delete(ctx context.Context, identity string) error {
	endpoint := f.baseURL + "/insights/" + url.PathEscape(identity)
	if _, err := f.http.GetJSON(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "delete insight", err)
	}
	return nil
}
