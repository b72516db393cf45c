// Package extract converts entity-extraction output into the canonical field
// record and computes the crop region used for the AI review pass.
package extract

import (
	"strings"

	geom "github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/pkg/docai"
)

// Result holds the normalized extraction output for one card.
type Result struct {
	Fields model.FieldRecord
	// CropRegion is the union of all entity regions expanded by the margin,
	// clamped to the page. Empty when no entity carried geometry.
	CropRegion model.BoundingRegion
}

// Normalize builds a field record from a processed document. Every entity
// yields an entry (source=extraction); entities without geometry keep a nil
// region. marginExpand is the fraction by which the union region grows
// (0.5 = 50%).
func Normalize(doc *docai.Document, marginExpand float64) *Result {
	fields := make(model.FieldRecord, len(doc.Entities))
	union := geom.NewBounds(geom.XY)

	for _, e := range doc.Entities {
		key := normalizeKey(e.Type)
		if key == "" {
			continue
		}

		entry := &model.FieldEntry{
			Value:      strings.TrimSpace(e.Text),
			Confidence: clamp01(e.Confidence),
			Source:     model.SourceExtraction,
			Enabled:    true,
		}

		if len(e.Vertices) > 0 {
			b := geom.NewBounds(geom.XY)
			for _, v := range e.Vertices {
				b.Extend(geom.NewPointFlat(geom.XY, []float64{v[0], v[1]}))
				union.Extend(geom.NewPointFlat(geom.XY, []float64{v[0], v[1]}))
			}
			entry.Region = &model.BoundingRegion{
				MinX: b.Min(0), MinY: b.Min(1),
				MaxX: b.Max(0), MaxY: b.Max(1),
			}
		}

		if existing, ok := fields[key]; ok && entry.Confidence <= existing.Confidence {
			// Duplicate entity types keep the higher-confidence mention.
			continue
		}
		fields[key] = entry
	}

	res := &Result{Fields: fields}
	if !union.IsEmpty() {
		res.CropRegion = expandRegion(model.BoundingRegion{
			MinX: union.Min(0), MinY: union.Min(1),
			MaxX: union.Max(0), MaxY: union.Max(1),
		}, marginExpand, pageBounds(doc))
	}

	zap.L().Debug("extraction normalized",
		zap.Int("entities", len(doc.Entities)),
		zap.Int("fields", len(fields)),
	)
	return res
}

// normalizeKey lowercases an entity type and converts spaces to underscores.
func normalizeKey(t string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "_")
}

// pageBounds returns the clamping rectangle from the first page, or a zero
// region when page geometry is unknown (no clamping).
func pageBounds(doc *docai.Document) model.BoundingRegion {
	if len(doc.Pages) == 0 {
		return model.BoundingRegion{}
	}
	return model.BoundingRegion{MaxX: doc.Pages[0].Width, MaxY: doc.Pages[0].Height}
}

// expandRegion grows r by marginExpand (split evenly per side) and clamps it
// to page when the page size is known.
func expandRegion(r model.BoundingRegion, marginExpand float64, page model.BoundingRegion) model.BoundingRegion {
	if marginExpand < 0 {
		marginExpand = 0
	}
	dx := (r.MaxX - r.MinX) * marginExpand / 2
	dy := (r.MaxY - r.MinY) * marginExpand / 2

	out := model.BoundingRegion{
		MinX: r.MinX - dx,
		MinY: r.MinY - dy,
		MaxX: r.MaxX + dx,
		MaxY: r.MaxY + dy,
	}

	if out.MinX < 0 {
		out.MinX = 0
	}
	if out.MinY < 0 {
		out.MinY = 0
	}
	if !page.Empty() {
		if out.MaxX > page.MaxX {
			out.MaxX = page.MaxX
		}
		if out.MaxY > page.MaxY {
			out.MaxY = page.MaxY
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
