package quantity

import (
	"testing"

	"github.com/verdantrx/dispense-engine/internal/warnings"
)

func TestParsePackage(t *testing.T) {
	cases := []struct {
		desc string
		size float64
		unit string
	}{
		{"30 TABLET in 1 BOTTLE", 30, "tablet"},
		{"100 capsule in 1 bottle (0071-0155-23)", 100, "capsule"},
		{"473 ML in 1 BOTTLE", 473, "ml"},
		{"1 VIAL in 1 CARTON", 1, "vial"},
	}

	for _, tc := range cases {
		pkg := ParsePackage(tc.desc)
		if pkg == nil {
			t.Errorf("ParsePackage(%q) = nil", tc.desc)
			continue
		}
		if pkg.Size != tc.size || pkg.Unit != tc.unit {
			t.Errorf("ParsePackage(%q) = %v %s, want %v %s",
				tc.desc, pkg.Size, pkg.Unit, tc.size, tc.unit)
		}
	}
}

func TestParsePackageNoMatch(t *testing.T) {
	for _, desc := range []string{"", "bottle of pills", "0 TABLET in 1 BOTTLE"} {
		if pkg := ParsePackage(desc); pkg != nil {
			t.Errorf("ParsePackage(%q) = %+v, want nil", desc, pkg)
		}
	}
}

func TestDetectFillBoundaries(t *testing.T) {
	pkg := &PackageSize{Size: 30, Unit: "tablet"}

	cases := []struct {
		quantity float64
		wantType warnings.Type
	}{
		{31.5, ""},                     // exactly +5%: boundary is exclusive
		{31.6, warnings.TypeOverfill},  // just past +5%
		{28.5, ""},                     // exactly -5%: boundary is exclusive
		{28.4, warnings.TypeUnderfill}, // just below -5%
		{30, ""},
		{60, warnings.TypeOverfill},
		{10, warnings.TypeUnderfill},
	}

	for _, tc := range cases {
		ws := DetectFill(tc.quantity, "tablet", pkg)
		if tc.wantType == "" {
			if len(ws) != 0 {
				t.Errorf("DetectFill(%v): unexpected warnings %+v", tc.quantity, ws)
			}
			continue
		}
		if len(ws) != 1 {
			t.Errorf("DetectFill(%v): got %d warnings, want 1", tc.quantity, len(ws))
			continue
		}
		if ws[0].Type != tc.wantType {
			t.Errorf("DetectFill(%v): type = %s, want %s", tc.quantity, ws[0].Type, tc.wantType)
		}
	}
}

func TestDetectFillSkipsUnitMismatch(t *testing.T) {
	pkg := &PackageSize{Size: 30, Unit: "ml"}
	if ws := DetectFill(300, "tablet", pkg); ws != nil {
		t.Errorf("unit mismatch should yield no fill warnings, got %+v", ws)
	}
	if ws := DetectFill(300, "tablet", nil); ws != nil {
		t.Errorf("nil package should yield no fill warnings, got %+v", ws)
	}
}

func TestMultiPack(t *testing.T) {
	pkg := &PackageSize{Size: 100, Unit: "tablet"}

	mp := MultiPack(360, "tablet", pkg)
	if mp == nil {
		t.Fatal("expected a multi-pack result")
	}
	if mp.PackageCount != 3 || mp.Remainder != 60 || !mp.IsMultiPack {
		t.Errorf("got %+v, want {3 60 true}", mp)
	}

	// A quantity inside one package is still "multi-pack" by definition
	// (one complete package applies) only once it reaches the size.
	mp = MultiPack(100, "tablet", pkg)
	if mp.PackageCount != 1 || !mp.IsMultiPack {
		t.Errorf("exact fit: got %+v, want count 1", mp)
	}

	mp = MultiPack(50, "tablet", pkg)
	if mp.PackageCount != 0 || mp.IsMultiPack {
		t.Errorf("partial package: got %+v, want count 0", mp)
	}
}

func TestMultiPackUnitMismatch(t *testing.T) {
	pkg := &PackageSize{Size: 100, Unit: "ml"}
	if mp := MultiPack(360, "tablet", pkg); mp != nil {
		t.Errorf("unit mismatch should yield nil, got %+v", mp)
	}
}

func TestComputeWithWarningsScenario(t *testing.T) {
	// 2 tablets BID for 90 days against a 100-count bottle:
	// quantity 360, ratio 3.6, three full packages plus 60 remaining.
	s := completeSig(2, "tablet", 2)
	report := ComputeWithWarnings(s, 90, "100 TABLET in 1 BOTTLE")

	if report.Quantity == nil || report.Quantity.Value != 360 {
		t.Fatalf("quantity = %+v, want 360", report.Quantity)
	}
	if report.PackageSize == nil || report.PackageSize.Size != 100 {
		t.Fatalf("package size = %+v, want 100", report.PackageSize)
	}
	if report.MultiPack == nil || report.MultiPack.PackageCount != 3 || report.MultiPack.Remainder != 60 {
		t.Fatalf("multi-pack = %+v, want {3 60 true}", report.MultiPack)
	}

	var sawOverfill, sawPackageInfo bool
	for _, w := range report.Warnings {
		switch {
		case w.Type == warnings.TypeOverfill:
			sawOverfill = true
		case w.Type == warnings.TypeOther && w.Field == "package_count":
			sawPackageInfo = true
		}
	}
	if !sawOverfill {
		t.Error("expected an overfill warning at 3.6x package size")
	}
	if !sawPackageInfo {
		t.Error("expected a package-count info warning")
	}
}

func TestComputeWithWarningsIncompleteSig(t *testing.T) {
	report := ComputeWithWarnings(nil, 30, "30 TABLET in 1 BOTTLE")
	if report.Quantity != nil {
		t.Errorf("expected nil quantity, got %+v", report.Quantity)
	}
	if report.PackageSize == nil {
		t.Error("package size should still parse without a quantity")
	}
	if len(report.Warnings) != 0 {
		t.Errorf("no warnings expected without a quantity, got %+v", report.Warnings)
	}
}
