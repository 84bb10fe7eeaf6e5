// Package snapshot implements the Snapshot Differ & Publisher (spec.md
// §4.G): diff the newly-computed whitelist against the last published
// snapshot, persist the result atomically, and emit broadcast messages.
package snapshot

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Diff implements spec.md §4.G's diff law: added = N\P, removed = P\N,
// kind = FULL iff P is empty.
func Diff(previous, next []chainmodel.PoolID) (added, removed []chainmodel.PoolID, kind chainmodel.SnapshotKind) {
	prevSet := mapset.NewSet(previous...)
	nextSet := mapset.NewSet(next...)

	added = nextSet.Difference(prevSet).ToSlice()
	removed = prevSet.Difference(nextSet).ToSlice()

	if len(previous) == 0 {
		kind = chainmodel.SnapshotFull
	} else {
		kind = chainmodel.SnapshotDifferential
	}
	return added, removed, kind
}
