package bleveindex

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/blevesearch/bleve/v2"

	"github.com/custodia-labs/searchsync/internal/core/domain"
)

// pending is one index's batch with the documents it will hold once applied.
type pending struct {
	name    string
	index   bleve.Index
	batch   *bleve.Batch
	docs    map[string]map[string]any
	deleted map[string]bool
}

// lookup returns the current source of id, taking batched writes into account.
func (p *pending) lookup(ctx context.Context, id string) (map[string]any, bool, error) {
	if p.deleted[id] {
		return nil, false, nil
	}
	if doc, ok := p.docs[id]; ok {
		return doc, true, nil
	}
	return loadSource(ctx, p.index, id)
}

func (p *pending) put(id string, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	indexed := maps.Clone(doc)
	indexed[sourceField] = string(data)
	if err := p.batch.Index(id, indexed); err != nil {
		return err
	}
	delete(p.deleted, id)
	p.docs[id] = doc
	return nil
}

func (p *pending) remove(id string) {
	p.batch.Delete(id)
	delete(p.docs, id)
	p.deleted[id] = true
}

// Bulk applies every request and reports one result per request. Writes
// are searchable on return, whatever refresh says.
func (b *Backend) Bulk(ctx context.Context, reqs []domain.BulkRequest, _ bool) (domain.BulkResponse, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	batches := make(map[string]*pending)
	var order []*pending
	resp := domain.BulkResponse{Items: make([]domain.BulkItemResult, 0, len(reqs))}

	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return domain.BulkResponse{}, err
		}
		item := domain.BulkItemResult{Action: req.Action, Index: req.Index, ID: req.ID}
		name, err := b.writeIndex(req.Index)
		if err != nil {
			item.Status, item.Type, item.Reason = 404, "index_not_found_exception", "no such index ["+req.Index+"]"
			resp.Items = append(resp.Items, item)
			continue
		}
		item.Index = name
		p, ok := batches[name]
		if !ok {
			idx := b.indices[name].index
			p = &pending{
				name:    name,
				index:   idx,
				batch:   idx.NewBatch(),
				docs:    make(map[string]map[string]any),
				deleted: make(map[string]bool),
			}
			batches[name] = p
			order = append(order, p)
		}
		b.apply(ctx, p, req, &item)
		resp.Items = append(resp.Items, item)
	}

	for _, p := range order {
		if p.batch.Size() == 0 {
			continue
		}
		if err := p.index.Batch(p.batch); err != nil {
			return domain.BulkResponse{}, &domain.TransportError{Op: "bulk", Index: p.name, Status: 500,
				Type: "index_failed_exception", Reason: err.Error()}
		}
	}
	return resp, nil
}

func (b *Backend) apply(ctx context.Context, p *pending, req domain.BulkRequest, item *domain.BulkItemResult) {
	current, exists, err := p.lookup(ctx, req.ID)
	if err != nil {
		item.Status, item.Type, item.Reason = 500, "search_phase_execution_exception", err.Error()
		return
	}

	switch req.Action {
	case domain.ActionDelete:
		if !exists {
			item.Status, item.Result = 404, "not_found"
			return
		}
		p.remove(req.ID)
		item.Status, item.Result = 200, "deleted"
	case domain.ActionCreate:
		if exists {
			item.Status, item.Type = 409, "version_conflict_engine_exception"
			item.Reason = fmt.Sprintf("[%s]: version conflict, document already exists", req.ID)
			return
		}
		b.write(p, req.ID, req.Source, 201, "created", item)
	case domain.ActionUpdate:
		if !exists {
			item.Status, item.Type = 404, "document_missing_exception"
			item.Reason = fmt.Sprintf("[%s]: document missing", req.ID)
			return
		}
		merged := maps.Clone(current)
		maps.Copy(merged, req.Doc)
		b.write(p, req.ID, merged, 200, "updated", item)
	case domain.ActionIndex:
		status, result := 201, "created"
		if exists {
			status, result = 200, "updated"
		}
		b.write(p, req.ID, req.Source, status, result, item)
	default:
		item.Status, item.Type = 400, "illegal_argument_exception"
		item.Reason = "unknown action [" + string(req.Action) + "]"
	}
}

func (b *Backend) write(p *pending, id string, doc map[string]any, status int, result string, item *domain.BulkItemResult) {
	if doc == nil {
		doc = make(map[string]any)
	}
	if err := p.put(id, doc); err != nil {
		item.Status, item.Type, item.Reason = 400, "mapper_parsing_exception", err.Error()
		return
	}
	item.Status, item.Result = status, result
}

// writeIndex resolves the concrete index written through name. An alias
// is writable when it points to exactly one index.
// Must be called with a lock held.
func (b *Backend) writeIndex(name string) (string, error) {
	targets, err := b.targets("bulk", name)
	if err != nil {
		return "", err
	}
	if len(targets) != 1 {
		return "", notFound("bulk", name)
	}
	return targets[0], nil
}

// loadSource reads the stored source of one document.
func loadSource(ctx context.Context, idx bleve.Index, id string) (map[string]any, bool, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{sourceField}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if len(res.Hits) == 0 {
		return nil, false, nil
	}
	raw, _ := res.Hits[0].Fields[sourceField].(string)
	doc := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, false, fmt.Errorf("decoding source of %s: %w", id, err)
		}
	}
	return doc, true, nil
}

// Source returns the stored document id of an index or alias.
func (b *Backend) Source(ctx context.Context, name, id string) (map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	targets, err := b.targets("get", name)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		doc, ok, err := loadSource(ctx, b.indices[t].index, id)
		if err != nil {
			return nil, err
		}
		if ok {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("document %s/%s: %w", name, id, domain.ErrNotFound)
}
