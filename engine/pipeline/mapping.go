package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/menusense/pipeline/engine/domain"
)

// rowTolerance is how close two elements' Y centers must be to be
// considered the same visual row, grounded on mapping_service.py's
// _format_mapping_data (tolerance = 20).
const rowTolerance = 20.0

// FormatMappingData renders positioned OCR elements into the row-grouped,
// then coordinate-ordered text block the categorizer expects, following
// mapping_service.py's _format_mapping_data exactly: group into rows by Y
// proximity, sort each row by X, then append a raw coordinate-ordered
// listing.
func FormatMappingData(elements []domain.OCRElement) string {
	sorted := append([]domain.OCRElement(nil), elements...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].YCenter < sorted[j].YCenter })

	var rows [][]domain.OCRElement
	var current []domain.OCRElement
	for _, el := range sorted {
		if len(current) == 0 {
			current = []domain.OCRElement{el}
			continue
		}
		if abs(el.YCenter-current[0].YCenter) <= rowTolerance {
			current = append(current, el)
			continue
		}
		sortRowByX(current)
		rows = append(rows, current)
		current = []domain.OCRElement{el}
	}
	if len(current) > 0 {
		sortRowByX(current)
		rows = append(rows, current)
	}

	var b strings.Builder
	fmt.Fprintln(&b, "=== Menu image text mapping data ===")
	fmt.Fprintf(&b, "Total elements: %d\n", len(elements))
	fmt.Fprintf(&b, "Rows: %d\n\n", len(rows))

	for i, row := range rows {
		var ySum float64
		for _, el := range row {
			ySum += el.YCenter
		}
		avgY := ySum / float64(len(row))
		fmt.Fprintf(&b, "Row %d (y=%.1f):\n", i+1, avgY)

		parts := make([]string, len(row))
		for j, el := range row {
			parts[j] = fmt.Sprintf("%q(x:%.0f)", el.Text, el.XCenter)
		}
		fmt.Fprintf(&b, "  elements: %s\n\n", strings.Join(parts, " | "))
	}

	b.WriteString("=== Raw data, coordinate order ===\n")
	coordSorted := append([]domain.OCRElement(nil), elements...)
	sort.SliceStable(coordSorted, func(i, j int) bool {
		if coordSorted[i].YCenter != coordSorted[j].YCenter {
			return coordSorted[i].YCenter < coordSorted[j].YCenter
		}
		return coordSorted[i].XCenter < coordSorted[j].XCenter
	})
	for i, el := range coordSorted {
		fmt.Fprintf(&b, "%2d. %q at (%4.0f, %4.0f)\n", i+1, el.Text, el.XCenter, el.YCenter)
	}

	return b.String()
}

func sortRowByX(row []domain.OCRElement) {
	sort.SliceStable(row, func(i, j int) bool { return row[i].XCenter < row[j].XCenter })
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ClassifyDensity matches pipeline_runner.py's text_density thresholds:
// >20 elements is high, >10 is medium, otherwise low.
func ClassifyDensity(elementCount int) domain.TextDensity {
	switch {
	case elementCount > 20:
		return domain.DensityHigh
	case elementCount > 10:
		return domain.DensityMedium
	default:
		return domain.DensityLow
	}
}
