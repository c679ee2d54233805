package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// encodeBulk renders requests as the NDJSON body of the _bulk endpoint.
func encodeBulk(reqs []domain.BulkRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range reqs {
		meta := map[string]any{
			string(req.Action): map[string]string{"_index": req.Index, "_id": req.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encoding bulk action: %w", err)
		}
		var body any
		switch req.Action {
		case domain.ActionDelete:
			continue
		case domain.ActionUpdate:
			body = map[string]any{"doc": req.Doc}
		default:
			body = req.Source
			if req.Source == nil {
				body = map[string]any{}
			}
		}
		if err := enc.Encode(body); err != nil {
			return nil, fmt.Errorf("encoding bulk source of %s: %w", req.ID, err)
		}
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemPayload `json:"items"`
}

type bulkItemPayload struct {
	Index  string `json:"_index"`
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Result string `json:"result"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Bulk submits a batch. Rejected items are reported per item.
func (b *Backend) Bulk(ctx context.Context, reqs []domain.BulkRequest, refresh bool) (domain.BulkResponse, error) {
	if len(reqs) == 0 {
		return domain.BulkResponse{}, nil
	}
	body, err := encodeBulk(reqs)
	if err != nil {
		return domain.BulkResponse{}, err
	}

	var out bulkResponse
	req := opensearchapi.BulkRequest{Body: bytes.NewReader(body), Refresh: strconv.FormatBool(refresh)}
	if err := b.do(ctx, "bulk", "", req, &out); err != nil {
		return domain.BulkResponse{}, err
	}

	resp := domain.BulkResponse{Items: make([]domain.BulkItemResult, 0, len(out.Items))}
	for i, item := range out.Items {
		for action, p := range item {
			result := domain.BulkItemResult{
				Action: domain.BulkAction(action),
				Index:  p.Index,
				ID:     p.ID,
				Status: p.Status,
				Result: p.Result,
			}
			if i < len(reqs) && result.ID == "" {
				result.ID = reqs[i].ID
			}
			if p.Error != nil {
				result.Type, result.Reason = p.Error.Type, p.Error.Reason
			}
			resp.Items = append(resp.Items, result)
		}
	}
	return resp, nil
}
