package pipeline

import (
	"strings"
	"testing"

	"github.com/menusense/pipeline/engine/domain"
)

func TestFormatMappingDataGroupsRowsByYProximity(t *testing.T) {
	elements := []domain.OCRElement{
		{Text: "Ramen", XCenter: 50, YCenter: 100},
		{Text: "¥800", XCenter: 200, YCenter: 105},
		{Text: "Gyoza", XCenter: 50, YCenter: 300},
	}

	out := FormatMappingData(elements)

	if !strings.Contains(out, "Rows: 2") {
		t.Fatalf("expected 2 rows, got:\n%s", out)
	}
	if !strings.Contains(out, "Total elements: 3") {
		t.Fatalf("expected element count, got:\n%s", out)
	}
}

func TestFormatMappingDataSortsWithinRowByX(t *testing.T) {
	elements := []domain.OCRElement{
		{Text: "second", XCenter: 200, YCenter: 10},
		{Text: "first", XCenter: 10, YCenter: 10},
	}

	out := FormatMappingData(elements)

	firstIdx := strings.Index(out, `"first"`)
	secondIdx := strings.Index(out, `"second"`)
	if firstIdx == -1 || secondIdx == -1 || firstIdx > secondIdx {
		t.Fatalf("expected \"first\" before \"second\" in row listing, got:\n%s", out)
	}
}

func TestFormatMappingDataEmptyInput(t *testing.T) {
	out := FormatMappingData(nil)
	if !strings.Contains(out, "Total elements: 0") {
		t.Fatalf("expected zero element count, got:\n%s", out)
	}
	if !strings.Contains(out, "Rows: 0") {
		t.Fatalf("expected zero rows, got:\n%s", out)
	}
}

func TestClassifyDensityThresholds(t *testing.T) {
	cases := []struct {
		count int
		want  domain.TextDensity
	}{
		{0, domain.DensityLow},
		{10, domain.DensityLow},
		{11, domain.DensityMedium},
		{20, domain.DensityMedium},
		{21, domain.DensityHigh},
	}
	for _, tc := range cases {
		if got := ClassifyDensity(tc.count); got != tc.want {
			t.Errorf("ClassifyDensity(%d) = %s, want %s", tc.count, got, tc.want)
		}
	}
}
