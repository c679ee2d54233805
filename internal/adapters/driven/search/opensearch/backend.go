package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/custodia-labs/searchsync/internal/core/domain"
	"github.com/custodia-labs/searchsync/internal/core/ports/driven"
)

const (
	scrollKeepAlive = time.Minute
	scrollPage      = 1000
)

// Ensure Backend implements the interface.
var _ driven.SearchBackend = (*Backend)(nil)

// Config holds connection settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// Transport overrides the HTTP transport, e.g. in tests.
	Transport http.RoundTripper
}

// Backend is a remote OpenSearch cluster.
type Backend struct {
	client *opensearch.Client
}

// New creates a client for the cluster. No request is made.
func New(cfg Config) (*Backend, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}
	return &Backend{client: client}, nil
}

// Close releases resources. The client holds none beyond idle connections.
func (b *Backend) Close() error {
	return nil
}

// errorBody is the error envelope of every failed call.
type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// transportError decodes a failed response.
func transportError(op, index string, res *opensearchapi.Response) error {
	te := &domain.TransportError{Op: op, Index: index, Status: res.StatusCode}
	data, _ := io.ReadAll(res.Body)
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Type != "" {
		te.Type, te.Reason = body.Error.Type, body.Error.Reason
	} else {
		te.Type, te.Reason = http.StatusText(res.StatusCode), strings.TrimSpace(string(data))
	}
	return te
}

// do runs a request and decodes a successful JSON answer into out.
func (b *Backend) do(ctx context.Context, op, index string, req opensearchapi.Request, out any) error {
	res, err := req.Do(ctx, b.client)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return transportError(op, index, res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// CreateIndex creates a concrete index.
func (b *Backend) CreateIndex(ctx context.Context, name string, body domain.IndexBody) error {
	payload := map[string]any{}
	if len(body.Settings) > 0 {
		payload["settings"] = body.Settings
	}
	if len(body.Mappings) > 0 {
		payload["mappings"] = body.Mappings
	}
	r, err := jsonBody(payload)
	if err != nil {
		return err
	}
	return b.do(ctx, "create", name, opensearchapi.IndicesCreateRequest{Index: name, Body: r}, nil)
}

// DeleteIndex deletes a concrete index.
func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	return b.do(ctx, "delete", name, opensearchapi.IndicesDeleteRequest{Index: []string{name}}, nil)
}

// IndexExists reports whether name is an index or an alias.
func (b *Backend) IndexExists(ctx context.Context, name string) (bool, error) {
	return b.exists(ctx, "exists", name, opensearchapi.IndicesExistsRequest{Index: []string{name}})
}

// AliasExists reports whether alias points to index.
func (b *Backend) AliasExists(ctx context.Context, index, alias string) (bool, error) {
	return b.exists(ctx, "exists_alias", index, opensearchapi.IndicesExistsAliasRequest{
		Index: []string{index},
		Name:  []string{alias},
	})
}

func (b *Backend) exists(ctx context.Context, op, name string, req opensearchapi.Request) (bool, error) {
	res, err := req.Do(ctx, b.client)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", op, name, err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, transportError(op, name, res)
	default:
		return true, nil
	}
}

// PutMapping extends the mapping of an index.
func (b *Backend) PutMapping(ctx context.Context, name string, mappings map[string]any) error {
	r, err := jsonBody(mappings)
	if err != nil {
		return err
	}
	return b.do(ctx, "put_mapping", name, opensearchapi.IndicesPutMappingRequest{Index: []string{name}, Body: r}, nil)
}

// ListIndices returns the sorted concrete index names matching pattern.
func (b *Backend) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	var rows []struct {
		Index string `json:"index"`
	}
	req := opensearchapi.CatIndicesRequest{Index: []string{pattern}, Format: "json", H: []string{"index"}}
	if err := b.do(ctx, "list", pattern, req, &rows); err != nil {
		if domain.IsTransportNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Index)
	}
	sort.Strings(out)
	return out, nil
}

// UpdateAliases applies all actions atomically.
func (b *Backend) UpdateAliases(ctx context.Context, actions []domain.AliasAction) error {
	ops := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		ops = append(ops, map[string]any{
			string(a.Op): map[string]string{"index": a.Index, "alias": a.Alias},
		})
	}
	r, err := jsonBody(map[string]any{"actions": ops})
	if err != nil {
		return err
	}
	return b.do(ctx, "update_aliases", "", opensearchapi.IndicesUpdateAliasesRequest{Body: r}, nil)
}

// Count returns the number of documents in an index or alias.
func (b *Backend) Count(ctx context.Context, name string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := b.do(ctx, "count", name, opensearchapi.CountRequest{Index: []string{name}}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Index string  `json:"_index"`
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

// ScanIDs returns the ids of every document, scrolling through the index.
func (b *Backend) ScanIDs(ctx context.Context, name string) ([]string, error) {
	size := scrollPage
	r, err := jsonBody(map[string]any{"query": map[string]any{"match_all": map[string]any{}}, "_source": false})
	if err != nil {
		return nil, err
	}
	var page searchResponse
	req := opensearchapi.SearchRequest{
		Index:  []string{name},
		Body:   r,
		Size:   &size,
		Scroll: scrollKeepAlive,
	}
	if err := b.do(ctx, "scan", name, req, &page); err != nil {
		return nil, err
	}

	var ids []string
	scrollID := page.ScrollID
	defer func() {
		if scrollID != "" {
			_ = b.do(context.WithoutCancel(ctx), "clear_scroll", name,
				opensearchapi.ClearScrollRequest{ScrollID: []string{scrollID}}, nil)
		}
	}()
	for len(page.Hits.Hits) > 0 {
		for _, h := range page.Hits.Hits {
			ids = append(ids, h.ID)
		}
		if scrollID == "" {
			break
		}
		page = searchResponse{}
		next := opensearchapi.ScrollRequest{ScrollID: scrollID, Scroll: scrollKeepAlive}
		if err := b.do(ctx, "scroll", name, next, &page); err != nil {
			return nil, err
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Search runs a query string query. An empty query matches everything.
func (b *Backend) Search(ctx context.Context, name, query string, limit int) ([]domain.Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := map[string]any{"match_all": map[string]any{}}
	if strings.TrimSpace(query) != "" {
		q = map[string]any{"query_string": map[string]any{"query": query}}
	}
	r, err := jsonBody(map[string]any{"query": q, "_source": false})
	if err != nil {
		return nil, err
	}
	var out searchResponse
	req := opensearchapi.SearchRequest{Index: []string{name}, Body: r, Size: &limit}
	if err := b.do(ctx, "search", name, req, &out); err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hits = append(hits, domain.Hit{Index: h.Index, ID: h.ID, Score: h.Score})
	}
	return hits, nil
}
