package version

import "testing"

func TestInfoString(t *testing.T) {
	Version, Commit = "1.2.3", "abc123"
	defer func() { Version, Commit = "dev", "unknown" }()

	info := Get()
	if info.Version != "1.2.3" || info.BuildDate != "unknown" {
		t.Errorf("Get() = %+v", info)
	}
	if got := info.String(); got != "1.2.3 (commit: abc123)" {
		t.Errorf("String() = %q", got)
	}
}
