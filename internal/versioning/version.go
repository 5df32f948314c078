package versioning

import (
	"fmt"
	"regexp"
	"strconv"
)

// APIVersion is the semantic version of the dashboard HTTP API.
type APIVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 as v is older, equal or newer than other.
func (v APIVersion) Compare(other APIVersion) int {
	for _, d := range [3]int{v.Major - other.Major, v.Minor - other.Minor, v.Patch - other.Patch} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

var (
	V1_0_0 = APIVersion{Major: 1}
	// V1_1_0 added the external event endpoints and message retry.
	V1_1_0 = APIVersion{Major: 1, Minor: 1}

	CurrentVersion          = V1_1_0
	MinimumSupportedVersion = V1_0_0
)

var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)

// ParseVersion accepts "1", "1.1", "1.1.0" and the same with a leading v.
func ParseVersion(s string) (APIVersion, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return APIVersion{}, fmt.Errorf("invalid version format: %s", s)
	}
	parts := [3]int{}
	for i := range parts {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return APIVersion{}, fmt.Errorf("invalid version format: %s", s)
		}
		parts[i] = n
	}
	return APIVersion{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// IsSupported reports whether requests written against v can be served.
func IsSupported(v APIVersion) bool {
	return v.Compare(MinimumSupportedVersion) >= 0 && v.Major == CurrentVersion.Major
}

// SupportedRange is the value of the X-Supported-Versions header.
func SupportedRange() string {
	return MinimumSupportedVersion.String() + " - " + CurrentVersion.String()
}
