package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// WorkflowRepo is the in-memory store.WorkflowRepository. The interface has
// no publish operation of its own (publication is a workflow authoring
// concern out of scope for the engine, §1): callers seed templates and
// versions directly through SeedTemplate/SeedVersion, the way a migration
// or fixture loader would populate the real document store.
type WorkflowRepo struct {
	mu        sync.Mutex
	templates map[domain.ID]*domain.WorkflowTemplate
	versions  map[domain.ID]*domain.WorkflowVersion
	byTemplate map[domain.ID][]domain.ID
}

func NewWorkflowRepo() *WorkflowRepo {
	return &WorkflowRepo{
		templates:  make(map[domain.ID]*domain.WorkflowTemplate),
		versions:   make(map[domain.ID]*domain.WorkflowVersion),
		byTemplate: make(map[domain.ID][]domain.ID),
	}
}

// SeedTemplate registers a template.
func (r *WorkflowRepo) SeedTemplate(t *domain.WorkflowTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.templates[t.TemplateID] = &cp
}

// SeedVersion registers a version under its template, in whatever order the
// caller supplies; LatestPublished and GetVersionByNumber both scan by
// Number rather than insertion order.
func (r *WorkflowRepo) SeedVersion(v *domain.WorkflowVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.versions[v.VersionID] = &cp
	r.byTemplate[v.TemplateID] = append(r.byTemplate[v.TemplateID], v.VersionID)
}

func (r *WorkflowRepo) GetTemplate(ctx context.Context, id domain.ID) (*domain.WorkflowTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.templates[id]
	if !ok {
		return nil, store.NotFoundError(domain.KindNotFound, "workflow template", id)
	}
	cp := *row
	return &cp, nil
}

func (r *WorkflowRepo) GetVersion(ctx context.Context, id domain.ID) (*domain.WorkflowVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.versions[id]
	if !ok {
		return nil, store.NotFoundError(domain.KindNotFound, "workflow version", id)
	}
	cp := *row
	return &cp, nil
}

func (r *WorkflowRepo) LatestPublished(ctx context.Context, templateID domain.ID) (*domain.WorkflowVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.WorkflowVersion
	for _, id := range r.byTemplate[templateID] {
		v := r.versions[id]
		if v.Status != domain.WorkflowPublished {
			continue
		}
		if best == nil || v.Number > best.Number {
			best = v
		}
	}
	if best == nil {
		return nil, store.NotFoundError(domain.KindNotFound, "published workflow version", templateID)
	}
	cp := *best
	return &cp, nil
}

func (r *WorkflowRepo) GetVersionByNumber(ctx context.Context, templateID domain.ID, number int) (*domain.WorkflowVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.byTemplate[templateID] {
		v := r.versions[id]
		if v.Number == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, store.NotFoundError(domain.KindNotFound, "workflow version", templateID)
}

var _ store.WorkflowRepository = (*WorkflowRepo)(nil)
