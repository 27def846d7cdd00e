package rbac

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeName trims and NFC-normalises a role or permission name.
// Case is preserved: names are compared case-sensitively.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// uniqueIDs drops repeated ids, keeping the first occurrence order.
// Non-positive ids are kept so target validation reports them.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
