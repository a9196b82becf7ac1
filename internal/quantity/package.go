package quantity

import (
	"regexp"
	"strconv"

	"github.com/verdantrx/dispense-engine/internal/sig"
)

// PackageSize is a parsed NDC package size. Nil means the description did
// not describe a countable package.
type PackageSize struct {
	Size float64 `json:"package_size"`
	Unit string  `json:"package_unit"`
}

// packageRe matches FDA package descriptions such as
// "30 TABLET in 1 BOTTLE" or "100 capsule in 1 bottle (0071-0155-23)".
var packageRe = regexp.MustCompile(`(?i)(\d+)\s+([A-Za-z]+)\s+in\s+\d+\s+[A-Za-z]+`)

// ParsePackage extracts the inner count and unit from a free-text package
// description. It returns nil on no match, a non-numeric count, or a count
// of zero or less.
func ParsePackage(description string) *PackageSize {
	if description == "" {
		return nil
	}
	m := packageRe.FindStringSubmatch(description)
	if m == nil {
		return nil
	}
	size, err := strconv.ParseFloat(m[1], 64)
	if err != nil || size <= 0 {
		return nil
	}
	return &PackageSize{
		Size: size,
		Unit: sig.NormalizeUnit(m[2]),
	}
}
