package parser

import (
	"fmt"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads items from columns A (front) and B (back) of a
// spreadsheet. An empty sheet name selects the first sheet. A leading
// front/back header row is skipped. A row without a back imports with an
// empty one.
func ParseXLSX(path, sheet string) ([]domain.Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("spreadsheet %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	var items []domain.Item
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		// GetRows drops trailing empty cells.
		front, back := strings.TrimSpace(row[0]), ""
		if len(row) > 1 {
			back = strings.TrimSpace(row[1])
		}
		if i == 0 && strings.EqualFold(front, "front") && strings.EqualFold(back, "back") {
			continue
		}
		if front == "" {
			continue
		}
		items = append(items, domain.Item{Front: front, Back: back})
	}
	return items, nil
}
