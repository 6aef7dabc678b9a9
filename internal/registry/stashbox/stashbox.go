package stashbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/registry"
	"github.com/sydlexius/stashlink/internal/version"
)

const (
	defaultTimeout = 15 * time.Second
	defaultLimit   = 10
	maxBodyBytes   = 2 * 1024 * 1024
)

// Adapter implements registry.Client for stash-box GraphQL endpoints.
// One adapter serves every configured source; the endpoint URL and API
// key come from the source passed to each call.
type Adapter struct {
	client  *http.Client
	limiter *registry.RateLimiterMap
	logger  *slog.Logger
}

var _ registry.TestableClient = (*Adapter)(nil)

// New creates a stash-box adapter. A zero timeout uses 15s.
func New(limiter *registry.RateLimiterMap, logger *slog.Logger, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger.With(slog.String("client", "stashbox")),
	}
}

// Search runs the kind-specific search query against source.
func (a *Adapter) Search(ctx context.Context, source registry.Source, kind catalog.Kind, query string, limit int) ([]registry.RemoteEntity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []registry.RemoteEntity{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	var gql string
	switch kind {
	case catalog.KindStudio:
		gql = searchStudioQuery
	case catalog.KindPerformer:
		gql = searchPerformerQuery
	case catalog.KindTag:
		gql = searchTagQuery
	default:
		return nil, &registry.ErrUnsupportedKind{Kind: kind}
	}

	resp, err := a.do(ctx, source, graphQLRequest{
		Query:     gql,
		Variables: map[string]any{"term": query, "limit": limit},
	})
	if err != nil {
		return nil, err
	}

	var results []registry.RemoteEntity
	switch kind {
	case catalog.KindStudio:
		results = make([]registry.RemoteEntity, 0, len(resp.Data.SearchStudio))
		for _, s := range resp.Data.SearchStudio {
			results = append(results, mapStudio(s))
		}
	case catalog.KindPerformer:
		results = make([]registry.RemoteEntity, 0, len(resp.Data.SearchPerformer))
		for _, p := range resp.Data.SearchPerformer {
			results = append(results, mapPerformer(p))
		}
	case catalog.KindTag:
		results = make([]registry.RemoteEntity, 0, len(resp.Data.SearchTag))
		for _, t := range resp.Data.SearchTag {
			results = append(results, mapTag(t))
		}
	}
	return results, nil
}

// TestConnection verifies the endpoint answers and accepts the API key.
func (a *Adapter) TestConnection(ctx context.Context, source registry.Source) error {
	resp, err := a.do(ctx, source, graphQLRequest{Query: versionQuery})
	if err != nil {
		return err
	}
	if resp.Data.Version == nil {
		return &registry.ErrRemote{SourceID: source.ID, Message: "version query returned no data"}
	}
	a.logger.Debug("connection ok",
		slog.String("source", source.ID),
		slog.String("version", resp.Data.Version.Version))
	return nil
}

// do POSTs a GraphQL request with rate limiting and standard headers.
func (a *Adapter) do(ctx context.Context, source registry.Source, gql graphQLRequest) (*searchResponse, error) {
	if err := a.limiter.Wait(ctx, source.ID); err != nil {
		return nil, &registry.ErrSourceUnavailable{
			SourceID: source.ID,
			Cause:    fmt.Errorf("rate limiter: %w", err),
		}
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, source.Endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if source.Endpoint.APIKey != "" {
		req.Header.Set("ApiKey", source.Endpoint.APIKey)
	}

	a.logger.Debug("requesting", slog.String("source", source.ID), slog.String("url", source.Endpoint.URL))

	resp, err := a.client.Do(req) //nolint:gosec // URL comes from operator config
	if err != nil {
		return nil, &registry.ErrSourceUnavailable{SourceID: source.ID, Cause: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &registry.ErrRemote{
			SourceID: source.ID,
			Message:  fmt.Sprintf("API key rejected (HTTP %d)", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &registry.ErrSourceUnavailable{
			SourceID:   source.ID,
			Cause:      fmt.Errorf("HTTP %d", resp.StatusCode),
			RetryAfter: 2 * time.Second,
		}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &registry.ErrSourceUnavailable{
			SourceID: source.ID,
			Cause:    fmt.Errorf("unexpected HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &registry.ErrSourceUnavailable{SourceID: source.ID, Cause: fmt.Errorf("reading body: %w", err)}
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing response from %s: %w", source.ID, err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, &registry.ErrRemote{SourceID: source.ID, Message: strings.Join(msgs, "; ")}
	}
	return &out, nil
}

func mapStudio(s sbStudio) registry.RemoteEntity {
	r := registry.RemoteEntity{
		ID:      s.ID,
		Name:    s.Name,
		Aliases: cleanAliases(s.Name, s.Aliases),
		Images:  imageURLs(s.Images),
		URLs:    urlStrings(s.URLs),
	}
	if s.Parent != nil && s.Parent.ID != "" {
		r.Parent = &registry.RemoteEntity{
			ID:      s.Parent.ID,
			Name:    s.Parent.Name,
			Aliases: cleanAliases(s.Parent.Name, s.Parent.Aliases),
		}
	}
	return r
}

func mapPerformer(p sbPerformer) registry.RemoteEntity {
	return registry.RemoteEntity{
		ID:             p.ID,
		Name:           p.Name,
		Aliases:        cleanAliases(p.Name, p.Aliases),
		Images:         imageURLs(p.Images),
		URLs:           urlStrings(p.URLs),
		Disambiguation: p.Disambiguation,
		Gender:         p.Gender,
		Birthdate:      p.BirthDate,
		Country:        p.Country,
		Ethnicity:      p.Ethnicity,
	}
}

func mapTag(t sbTag) registry.RemoteEntity {
	return registry.RemoteEntity{
		ID:          t.ID,
		Name:        t.Name,
		Aliases:     cleanAliases(t.Name, t.Aliases),
		Description: t.Description,
	}
}

// cleanAliases drops blanks, the primary name and repeats, keeping order.
func cleanAliases(name string, aliases []string) []string {
	var out []string
	seen := map[string]bool{name: true}
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func imageURLs(images []sbImage) []string {
	var out []string
	for _, img := range images {
		if img.URL != "" {
			out = append(out, img.URL)
		}
	}
	return out
}

func urlStrings(urls []sbURL) []string {
	var out []string
	for _, u := range urls {
		if u.URL != "" {
			out = append(out, u.URL)
		}
	}
	return out
}
