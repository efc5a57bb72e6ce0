package version

import (
	"strings"
	"testing"
)

func TestStringUsesLinkedCommit(t *testing.T) {
	prevVersion, prevCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = prevVersion, prevCommit })

	Version, Commit = "1.2.3", "abc123"
	got := String()
	if !strings.HasPrefix(got, "speakergroups 1.2.3 (abc123, go") {
		t.Fatalf("String() = %q", got)
	}
}
