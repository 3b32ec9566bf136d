package tracking

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/linkgraph/internal/model"
)

var tracer = otel.Tracer("linkgraph.tracking")

// SaveChanges sends the pending changes of this view to the remote.
//
// Deletes run first. Models that were never sent are dropped instead of
// deleted. Saves then run in passes: each pass inserts new models and then
// updates changed ones, nodes before links, and defers links whose
// endpoints have no server key yet. Passes repeat until nothing is left to
// save; a pass that saves nothing fails with ErrSaveStalled. Invariants are
// checked for every pending model before the first remote call. A remote
// failure stops SaveChanges; models saved before it stay committed and the
// rest keep their state for a retry or Revert.
func (r *Repository) SaveChanges(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "tracking.save_changes")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	r.CalculateStates()
	var deletes, saves []*TrackedModel
	for _, t := range r.Entries() {
		switch t.State() {
		case ShouldDelete:
			deletes = append(deletes, t)
		case ShouldSave:
			saves = append(saves, t)
		}
	}
	span.SetAttributes(
		attribute.Int("tracking.deletes", len(deletes)),
		attribute.Int("tracking.saves", len(saves)),
	)
	if len(deletes) == 0 && len(saves) == 0 {
		return nil
	}

	for _, t := range deletes {
		if err := model.CheckSavable(t.Model, true); err != nil {
			return err
		}
	}
	for _, t := range saves {
		if err := model.CheckSavable(t.Model, false); err != nil {
			return err
		}
	}

	if err := r.applyDeletes(ctx, linksFirst(deletes)); err != nil {
		return err
	}
	return r.saveFixpoint(ctx, span, len(saves))
}

// linksFirst orders links ahead of nodes, keeping attachment order within
// each group.
func linksFirst(items []*TrackedModel) []*TrackedModel {
	out := make([]*TrackedModel, 0, len(items))
	for _, t := range items {
		if _, ok := model.AsLink(t.Model); ok {
			out = append(out, t)
		}
	}
	for _, t := range items {
		if _, ok := model.AsLink(t.Model); !ok {
			out = append(out, t)
		}
	}
	return out
}

// nodesFirst orders nodes ahead of links.
func nodesFirst(items []*TrackedModel) []*TrackedModel {
	out := make([]*TrackedModel, 0, len(items))
	for _, t := range items {
		if _, ok := model.AsLink(t.Model); !ok {
			out = append(out, t)
		}
	}
	for _, t := range items {
		if _, ok := model.AsLink(t.Model); ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Repository) applyDeletes(ctx context.Context, deletes []*TrackedModel) error {
	for _, t := range deletes {
		if t.State() == IsNotTracked {
			continue
		}
		key := t.Key()
		if t.Model.Base().IsNew || model.IsProvisional(key) {
			r.logger.Debug("dropping unsent model", "key", key)
			r.mgr.remove(t)
			continue
		}
		if _, err := r.remote.Delete(ctx, t.Model); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		r.logger.Debug("deleted model", "key", key)
		r.mgr.remove(t)
		r.dropLinksOf(key)
	}
	return nil
}

// dropLinksOf stops tracking links that touch a deleted node. The server
// removes them with the node.
func (r *Repository) dropLinksOf(key string) {
	for _, t := range append([]*TrackedModel(nil), r.mgr.order...) {
		l, ok := model.AsLink(t.Model)
		if ok && (l.FromKey() == key || l.ToKey() == key) {
			r.mgr.remove(t)
		}
	}
}

func (r *Repository) saveFixpoint(ctx context.Context, span trace.Span, pending int) error {
	prev := r.mgr.SetEnabled(false)
	defer r.mgr.SetEnabled(prev)

	for pass := 1; pass <= pending+1; pass++ {
		var inserts, updates []*TrackedModel
		for _, t := range r.Entries() {
			if t.CalculateState() != ShouldSave {
				continue
			}
			if t.Model.Base().IsNew || model.IsProvisional(t.Key()) {
				inserts = append(inserts, t)
			} else {
				updates = append(updates, t)
			}
		}
		if len(inserts) == 0 && len(updates) == 0 {
			span.SetAttributes(attribute.Int("tracking.passes", pass-1))
			return nil
		}

		saved := 0
		for _, group := range []struct {
			items  []*TrackedModel
			insert bool
		}{{nodesFirst(inserts), true}, {nodesFirst(updates), false}} {
			for _, t := range group.items {
				if !endpointsSaved(t.Model) {
					continue
				}
				if err := r.save(ctx, t, group.insert); err != nil {
					return err
				}
				saved++
			}
		}
		r.logger.Debug("save pass", "pass", pass, "inserts", len(inserts), "updates", len(updates), "saved", saved)
		if saved == 0 {
			return fmt.Errorf("%w: %d models pending", ErrSaveStalled, len(inserts)+len(updates))
		}
	}
	return fmt.Errorf("%w: pass limit reached", ErrSaveStalled)
}

// endpointsSaved reports whether a link's endpoints carry server keys.
// Nodes always pass.
func endpointsSaved(m model.Model) bool {
	l, ok := model.AsLink(m)
	if !ok {
		return true
	}
	for _, end := range []model.Model{l.From, l.To} {
		if model.KeyOf(end) != "" && end.Base().IsNew {
			return false
		}
	}
	return !model.IsProvisional(l.FromKey()) && !model.IsProvisional(l.ToKey())
}

func (r *Repository) save(ctx context.Context, t *TrackedModel, insert bool) error {
	oldKey := t.Key()
	var (
		result model.Model
		err    error
	)
	if insert {
		result, err = r.remote.Insert(ctx, t.Model, r.orgUnit)
	} else {
		result, err = r.remote.Update(ctx, t.Model, r.orgUnit)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", oldKey, err)
	}
	if err := t.Commit(result); err != nil {
		return fmt.Errorf("commit %s: %w", oldKey, err)
	}
	if err := r.mgr.rekey(oldKey, t); err != nil {
		return err
	}
	r.logger.Debug("saved model", "key", t.Key(), "insert", insert)
	return nil
}
