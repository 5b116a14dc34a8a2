package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/openwitness/chronicle/internal/domain"
)

const exportSheet = "Sheet1"

// ExportCurrent renders every current version of kind into an xlsx workbook:
// a header row of the kind's declared fields plus bookkeeping columns, one
// row per record. The caller owns closing the file.
func (s *Service) ExportCurrent(ctx context.Context, kind domain.Kind) (*excelize.File, error) {
	desc, ok := domain.DescriptorFor(kind)
	if !ok {
		return nil, &domain.NotFoundError{Resource: "collection", ID: string(kind)}
	}

	items, _, err := s.store.Records().ListCurrent(ctx, kind, desc.SearchField, "", 0, 0)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()

	headers := append([]string{"id", "created_at", "verification_count"}, desc.FieldNames()...)
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header %q: %w", header, err)
		}
	}

	for rowIdx, v := range items {
		values := []any{v.ID.String(), v.CreatedAt.UTC().Format("2006-01-02 15:04:05"), v.VerificationCount}
		for _, name := range desc.FieldNames() {
			values = append(values, cellValue(v.Fields[name]))
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return nil, fmt.Errorf("failed to compute data cell: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", rowIdx+2, err)
			}
		}
	}

	return f, nil
}

// cellValue flattens list fields into a comma-separated cell.
func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return v
	}
}
