// Package requirements manages per-tenant field catalogs: which fields a
// tenant collects, which are required, and how a field record is reconciled
// against the catalog.
package requirements

import (
	"context"
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/internal/split"
	"github.com/sells-group/cardcapture/internal/validate"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// CatalogStore is the slice of the store this package needs.
type CatalogStore interface {
	GetCatalog(ctx context.Context, tenantID string) (*model.Catalog, error)
	PutCatalog(ctx context.Context, catalog *model.Catalog) error
	TenantVocabulary(ctx context.Context, tenantID, name string) ([]string, error)
}

// Identity fields default to required when first seen during sync.
// Identity keys sync in as required when first detected. Contact keys stay
// optional, matching the seed catalog's defaults.
var identityKeys = map[string]bool{
	"name":       true,
	"first_name": true,
	"last_name":  true,
	"email":      true,
}

var (
	seedOnce   sync.Once
	seedFields []model.FieldRequirement
	seedErr    error
)

func seed() ([]model.FieldRequirement, error) {
	seedOnce.Do(func() {
		var doc struct {
			Fields []model.FieldRequirement `yaml:"fields"`
		}
		if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
			seedErr = eris.Wrap(err, "requirements: parse seed defaults")
			return
		}
		seedFields = doc.Fields
	})
	return seedFields, seedErr
}

// Manager loads, syncs, and applies tenant field catalogs.
type Manager struct {
	store CatalogStore
}

func NewManager(store CatalogStore) *Manager {
	return &Manager{store: store}
}

// Get returns the tenant's catalog, seeding from defaults when none is
// stored. Combined keys never appear in a catalog.
func (m *Manager) Get(ctx context.Context, tenantID string) (*model.Catalog, error) {
	cat, err := m.store.GetCatalog(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "requirements: get catalog")
	}
	if cat == nil {
		fields, err := seed()
		if err != nil {
			return nil, err
		}
		cat = &model.Catalog{TenantID: tenantID, Fields: append([]model.FieldRequirement(nil), fields...)}
	}

	out := &model.Catalog{TenantID: cat.TenantID}
	for _, f := range cat.Fields {
		if split.IsCombined(f.Key) {
			continue
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// Sync appends any extracted keys missing from the tenant's catalog. Known
// keys are never modified, so repeated syncs with the same record are no-ops.
// mapped_major only enters the catalog when the tenant has a majors
// vocabulary to map against.
func (m *Manager) Sync(ctx context.Context, tenantID string, fields model.FieldRecord) (*model.Catalog, error) {
	cat, err := m.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	majors, err := m.store.TenantVocabulary(ctx, tenantID, "majors")
	if err != nil {
		return nil, eris.Wrap(err, "requirements: tenant vocabulary")
	}

	changed := false
	switch {
	case len(majors) == 0 && cat.Has("mapped_major"):
		kept := cat.Fields[:0]
		for _, f := range cat.Fields {
			if f.Key != "mapped_major" {
				kept = append(kept, f)
			}
		}
		cat.Fields = kept
		changed = true
	case len(majors) > 0:
		// presence of the vocabulary activates the field, not detection
		if f := cat.ByKey("mapped_major"); f != nil {
			if !f.Enabled {
				f.Enabled = true
				changed = true
			}
		} else {
			cat.Fields = append(cat.Fields, model.FieldRequirement{
				Key:     "mapped_major",
				Label:   validate.Label("mapped_major"),
				Enabled: true,
			})
			changed = true
		}
	}

	for _, key := range fields.Keys() {
		if cat.Has(key) || split.IsCombined(key) {
			continue
		}
		if key == "mapped_major" && len(majors) == 0 {
			continue
		}
		cat.Fields = append(cat.Fields, model.FieldRequirement{
			Key:      key,
			Label:    validate.Label(key),
			Enabled:  true,
			Required: identityKeys[key],
		})
		changed = true
	}

	if changed {
		if err := m.store.PutCatalog(ctx, cat); err != nil {
			return nil, eris.Wrap(err, "requirements: put catalog")
		}
		zap.L().Info("field catalog updated",
			zap.String("tenant_id", tenantID),
			zap.Int("fields", len(cat.Fields)),
		)
	}
	return cat, nil
}

// Apply reconciles a field record against the catalog in place:
//   - entries for known keys take the catalog's enabled/required flags
//   - entries for unknown keys stay enabled and optional
//   - enabled catalog keys missing from the record get blank entries
//
// Values are never overwritten; only flags and synthesized blanks change.
func Apply(fields model.FieldRecord, cat *model.Catalog) {
	for _, req := range cat.Fields {
		entry, ok := fields[req.Key]
		if !ok {
			if !req.Enabled {
				continue
			}
			entry = &model.FieldEntry{Source: model.SourceFallback}
			if req.Required {
				entry.RequiresHumanReview = true
				entry.ReviewNotes = "Required field missing from extraction"
			}
			fields[req.Key] = entry
		}
		entry.Enabled = req.Enabled
		entry.Required = req.Required
	}
}
