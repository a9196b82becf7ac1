package quantity

import (
	"fmt"
	"math"

	"github.com/verdantrx/dispense-engine/internal/sig"
	"github.com/verdantrx/dispense-engine/internal/warnings"
)

// fillTolerance is the accepted deviation between computed quantity and
// package size before an overfill/underfill warning fires. Both boundaries
// are exclusive: a quantity at exactly ±5% triggers neither warning.
const fillTolerance = 0.05

// MultiPackResult describes how many complete packages a computed quantity
// spans. IsMultiPack is true whenever at least one complete package applies,
// including exactly one.
type MultiPackResult struct {
	PackageCount int     `json:"package_count"`
	Remainder    float64 `json:"remainder"`
	IsMultiPack  bool    `json:"is_multi_pack"`
}

// FillReport bundles the quantity computation and its package comparison.
type FillReport struct {
	Quantity    *Result            `json:"quantity,omitempty"`
	PackageSize *PackageSize       `json:"package_size,omitempty"`
	MultiPack   *MultiPackResult   `json:"multi_pack,omitempty"`
	Warnings    []warnings.Warning `json:"warnings,omitempty"`
}

// DetectFill compares a computed quantity against a package size and returns
// overfill/underfill warnings. It returns nothing when the package size is
// unknown or the units do not match; unit mismatches are reported elsewhere.
func DetectFill(quantityValue float64, quantityUnit string, pkg *PackageSize) []warnings.Warning {
	if pkg == nil || !sig.UnitsEquivalent(quantityUnit, pkg.Unit) {
		return nil
	}

	var ws []warnings.Warning
	upper := pkg.Size * (1 + fillTolerance)
	lower := pkg.Size * (1 - fillTolerance)

	if quantityValue > upper {
		excess := quantityValue - pkg.Size
		pct := excess / pkg.Size * 100
		ws = append(ws, warnings.Warning{
			Type:     warnings.TypeOverfill,
			Severity: warnings.SeverityWarning,
			Field:    "quantity",
			Message: fmt.Sprintf("computed quantity %.4g %s exceeds package size %.4g by %.4g (%.1f%%)",
				quantityValue, quantityUnit, pkg.Size, excess, pct),
		})
	} else if quantityValue < lower {
		shortage := pkg.Size - quantityValue
		pct := shortage / pkg.Size * 100
		ws = append(ws, warnings.Warning{
			Type:     warnings.TypeUnderfill,
			Severity: warnings.SeverityWarning,
			Field:    "quantity",
			Message: fmt.Sprintf("computed quantity %.4g %s falls short of package size %.4g by %.4g (%.1f%%)",
				quantityValue, quantityUnit, pkg.Size, shortage, pct),
		})
	}
	return ws
}

// MultiPack computes how many complete packages the quantity spans. It
// returns nil when the units do not match or the package size is not
// positive.
func MultiPack(quantityValue float64, quantityUnit string, pkg *PackageSize) *MultiPackResult {
	if pkg == nil || pkg.Size <= 0 || !sig.UnitsEquivalent(quantityUnit, pkg.Unit) {
		return nil
	}
	count := int(math.Floor(quantityValue / pkg.Size))
	return &MultiPackResult{
		PackageCount: count,
		Remainder:    math.Mod(quantityValue, pkg.Size),
		IsMultiPack:  count >= 1,
	}
}

// ComputeWithWarnings runs the full quantity stage: calculate, parse the
// selected package description, compare, and accumulate warnings. It always
// returns a report; absent inputs leave the corresponding fields nil.
func ComputeWithWarnings(s *sig.NormalizedSig, daysSupply float64, packageDescription string) *FillReport {
	report := &FillReport{
		Quantity:    Calculate(s, daysSupply),
		PackageSize: ParsePackage(packageDescription),
	}
	if report.Quantity == nil {
		return report
	}

	report.Warnings = append(report.Warnings,
		DetectFill(report.Quantity.Value, report.Quantity.Unit, report.PackageSize)...)

	report.MultiPack = MultiPack(report.Quantity.Value, report.Quantity.Unit, report.PackageSize)
	if report.MultiPack != nil && report.MultiPack.PackageCount > 1 {
		report.Warnings = append(report.Warnings, warnings.Warning{
			Type:     warnings.TypeOther,
			Severity: warnings.SeverityInfo,
			Field:    "package_count",
			Message: fmt.Sprintf("%d packages required with %.4g %s remaining",
				report.MultiPack.PackageCount, report.MultiPack.Remainder, report.Quantity.Unit),
		})
	}
	return report
}
