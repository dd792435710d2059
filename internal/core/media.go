package core

// media.go uploads the images named by a row and builds gallery entries.
// A raw reference is uploaded once per bunch; images already stored for the
// SKU are not added again.

import (
	"context"
	"strings"
)

// mediaGalleryCode is the attribute that owns gallery entries.
const mediaGalleryCode = "media_gallery"

type mediaDraft struct {
	sku   string
	entry MediaEntry
}

// mediaCollector holds the per-bunch upload cache and gallery entries.
type mediaCollector struct {
	uploader    Uploader
	separator   string
	attributeID int
	uploaded    map[string]string
	failed      map[string]bool
	existing    map[string]map[string]bool
	entries     []mediaDraft
}

func newMediaCollector(uploader Uploader, separator string, attributeID int, existing map[string]map[string]bool) *mediaCollector {
	if existing == nil {
		existing = make(map[string]map[string]bool)
	}
	return &mediaCollector{
		uploader:    uploader,
		separator:   separator,
		attributeID: attributeID,
		uploaded:    make(map[string]string),
		failed:      make(map[string]bool),
		existing:    existing,
	}
}

// rowImages returns the image references of each image column.
func rowImages(row *Row, sep string) map[string][]string {
	images := make(map[string][]string)
	for _, col := range imageColumns {
		refs := SplitValues(row.Value(col), sep)
		if len(refs) == 0 {
			continue
		}
		seen := make(map[string]bool, len(refs))
		unique := refs[:0]
		for _, ref := range refs {
			if !seen[ref] {
				seen[ref] = true
				unique = append(unique, ref)
			}
		}
		images[col] = unique
	}
	return images
}

// hasImages reports whether the row names any image.
func hasImages(row *Row) bool {
	for _, col := range imageColumns {
		if row.Has(col) {
			return true
		}
	}
	return false
}

// collect uploads the row's images, writes resolved references back into
// image attribute cells and appends gallery entries.
func (m *mediaCollector) collect(ctx context.Context, row *Row, errs *ErrorAggregator) {
	images := rowImages(row, m.separator)
	if len(images) == 0 {
		return
	}

	disabled := make(map[string]bool)
	for _, ref := range SplitValues(row.Value(ColMediaDisabled), m.separator) {
		disabled[ref] = true
	}

	for _, col := range imageColumns {
		refs, ok := images[col]
		if !ok {
			continue
		}
		labels := SplitValues(row.Value(col+"_label"), m.separator)

		for pos, ref := range refs {
			file, ok := m.upload(ctx, ref)
			if !ok {
				errs.AddRowError(KindMediaNotAccessible, row.Num, col)
				if col != ColMediaImage {
					delete(row.Data, col)
				}
				continue
			}
			if col != ColMediaImage {
				row.Set(col, file)
			}

			if m.existing[row.SKU][file] {
				continue
			}
			label := ""
			if pos < len(labels) {
				label = labels[pos]
			}
			m.entries = append(m.entries, mediaDraft{
				sku: row.SKU,
				entry: MediaEntry{
					AttributeID: m.attributeID,
					Label:       label,
					Position:    pos + 1,
					Disabled:    disabled[ref],
					Value:       file,
				},
			})
			m.markExisting(row.SKU, file)
		}
	}
}

func (m *mediaCollector) upload(ctx context.Context, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if file, ok := m.uploaded[ref]; ok {
		return file, true
	}
	if m.failed[ref] || m.uploader == nil {
		return "", false
	}
	file, err := m.uploader.Upload(ctx, ref)
	if err != nil || file == "" {
		m.failed[ref] = true
		return "", false
	}
	m.uploaded[ref] = file
	return file, true
}

func (m *mediaCollector) markExisting(sku, file string) {
	files, ok := m.existing[sku]
	if !ok {
		files = make(map[string]bool)
		m.existing[sku] = files
	}
	files[file] = true
}
