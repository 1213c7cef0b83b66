// Package resolver decides which field the onboarding conversation should
// collect next. The oracle proposes the next priority field from the full
// collected context; when it is unavailable or proposes something already
// collected, a deterministic walk of the requirements catalog takes over, so
// sessions always make progress.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/internal/oracle"
)

// Resolver picks the next field to request.
type Resolver struct {
	judge   oracle.Judge
	catalog *Catalog
}

// New creates a Resolver. A nil catalog loads the embedded default.
func New(judge oracle.Judge, catalog *Catalog) (*Resolver, error) {
	if catalog == nil {
		var err error
		catalog, err = LoadCatalog("")
		if err != nil {
			return nil, err
		}
	}
	return &Resolver{judge: judge, catalog: catalog}, nil
}

// Catalog exposes the loaded requirements catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Label returns the prompt label for a field.
func (r *Resolver) Label(field string) string {
	return r.catalog.Label(field)
}

// Next returns the name of the next field to collect, or "" when every
// applicable field has been collected or parked. The oracle's plan is
// consulted first; on oracle failure the catalog walk keeps the
// conversation moving.
func (r *Resolver) Next(ctx context.Context, collected map[string]string) string {
	plan, err := r.judge.PlanFields(ctx, collected)
	if err != nil {
		zap.L().Warn("resolver: field plan unavailable, using catalog order",
			zap.Error(err),
		)
		return r.fallback(collected)
	}

	next := plan.NextPriorityField
	if next == "" {
		// The oracle considers collection finished.
		return ""
	}
	if !answered(collected, next) {
		return next
	}

	// The plan named a field we already have; walk the catalog so the
	// conversation cannot loop on it.
	zap.L().Debug("resolver: plan named an answered field, advancing",
		zap.String("field", next),
	)
	return r.fallback(collected)
}

// fallback walks the catalog in order and returns the first applicable
// unanswered mandatory field. Optional fields are only ever requested when
// the oracle plan names them.
func (r *Resolver) fallback(collected map[string]string) string {
	businessType := collected["business_type"]
	for _, f := range r.catalog.Fields {
		if !f.Mandatory || !f.AppliesTo(businessType) {
			continue
		}
		if answered(collected, f.Name) {
			continue
		}
		return f.Name
	}
	return ""
}

// answered reports whether a field has been collected or parked for manual
// review. Parked fields are never re-requested.
func answered(collected map[string]string, field string) bool {
	if _, ok := collected[field]; ok {
		return true
	}
	_, parked := collected[field+model.PendingSuffix]
	return parked
}
