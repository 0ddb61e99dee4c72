package pkg

import (
	"testing"
)

// MergeVarLib operates against the real /var/lib and /.new.var.lib paths
// (see internal/paths), so it is exercised end-to-end by
// TestRebaseIntegration_MergesHostIdentity rather than a sandboxed unit test
// here, matching ReplaceBootFiles and MergeEtc.
func TestMergeVarLib_Documented(t *testing.T) {
	t.Skip("MergeVarLib touches real /var/lib; covered by the Incus integration test")
}
