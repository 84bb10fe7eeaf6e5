package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

func id(b byte) chainmodel.PoolID {
	var p chainmodel.PoolID
	p[31] = b
	return p
}

func TestDiffFirstPublishIsFull(t *testing.T) {
	a, b, c := id(1), id(2), id(3)
	added, removed, kind := Diff(nil, []chainmodel.PoolID{a, b, c})
	require.Equal(t, chainmodel.SnapshotFull, kind)
	require.ElementsMatch(t, []chainmodel.PoolID{a, b, c}, added)
	require.Empty(t, removed)
}

func TestDiffDifferential(t *testing.T) {
	a, b, c, d, e := id(1), id(2), id(3), id(4), id(5)
	previous := []chainmodel.PoolID{a, b, c}
	next := []chainmodel.PoolID{a, b, d, e}

	added, removed, kind := Diff(previous, next)
	require.Equal(t, chainmodel.SnapshotDifferential, kind)
	require.ElementsMatch(t, []chainmodel.PoolID{d, e}, added)
	require.ElementsMatch(t, []chainmodel.PoolID{c}, removed)
}

func TestDiffNoOpWhenSetsMatch(t *testing.T) {
	a, b := id(1), id(2)
	added, removed, kind := Diff([]chainmodel.PoolID{a, b}, []chainmodel.PoolID{a, b})
	require.Equal(t, chainmodel.SnapshotDifferential, kind)
	require.Empty(t, added)
	require.Empty(t, removed)
}

func TestDiffRoundTripAppliesAddedRemoved(t *testing.T) {
	a, b, c, d := id(1), id(2), id(3), id(4)
	previous := []chainmodel.PoolID{a, b, c}
	next := []chainmodel.PoolID{a, b, d}

	added, removed, _ := Diff(previous, next)

	applied := map[chainmodel.PoolID]bool{}
	for _, p := range previous {
		applied[p] = true
	}
	for _, r := range removed {
		delete(applied, r)
	}
	for _, addedID := range added {
		applied[addedID] = true
	}

	require.Len(t, applied, len(next))
	for _, p := range next {
		require.True(t, applied[p])
	}
}
