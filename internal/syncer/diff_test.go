package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objsync/objsync/internal/store"
)

func obj(key string, size int64, mod time.Time) store.Object {
	return store.Object{Key: key, Size: size, LastModified: mod}
}

func identity(key string) string { return key }

func TestCompare_Classification(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	tests := []struct {
		name            string
		src, dst        map[string]store.Object
		wantNeedsCopy   []string
		wantConflicting []string
		wantUnchanged   []string
	}{
		{
			name:          "absent at destination",
			src:           map[string]store.Object{"a": obj("a", 10, t0)},
			dst:           map[string]store.Object{},
			wantNeedsCopy: []string{"a"},
		},
		{
			name:            "size mismatch",
			src:             map[string]store.Object{"a": obj("a", 12, t0)},
			dst:             map[string]store.Object{"a": obj("a", 10, t1)},
			wantConflicting: []string{"a"},
		},
		{
			name:          "same size, destination newer",
			src:           map[string]store.Object{"a": obj("a", 10, t0)},
			dst:           map[string]store.Object{"a": obj("a", 10, t1)},
			wantUnchanged: []string{"a"},
		},
		{
			name:          "same size, equal timestamps",
			src:           map[string]store.Object{"a": obj("a", 10, t0)},
			dst:           map[string]store.Object{"a": obj("a", 10, t0)},
			wantUnchanged: []string{"a"},
		},
		{
			// conservative: equal size but newer source is changed
			// content, never a silent skip
			name:            "same size, source newer",
			src:             map[string]store.Object{"a": obj("a", 10, t1)},
			dst:             map[string]store.Object{"a": obj("a", 10, t0)},
			wantConflicting: []string{"a"},
		},
		{
			// size mismatch wins over the timestamp tie-break even when
			// the destination is newer
			name:            "size mismatch beats newer destination",
			src:             map[string]store.Object{"a": obj("a", 12, t0)},
			dst:             map[string]store.Object{"a": obj("a", 10, t1.Add(time.Hour))},
			wantConflicting: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compare(tt.src, tt.dst, identity)
			assert.ElementsMatch(t, tt.wantNeedsCopy, keysOf(d.NeedsCopy))
			assert.ElementsMatch(t, tt.wantConflicting, keysOf(d.Conflicting))
			assert.ElementsMatch(t, tt.wantUnchanged, keysOf(d.Unchanged))
		})
	}
}

func TestCompare_DestinationOnlyKeysIgnored(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := map[string]store.Object{"a": obj("a", 10, t0)}
	dst := map[string]store.Object{
		"a": obj("a", 10, t0),
		"c": obj("c", 30, t0),
	}

	d := Compare(src, dst, identity)
	require.True(t, d.Converged())
	total := len(d.NeedsCopy) + len(d.Conflicting) + len(d.Unchanged)
	assert.Equal(t, 1, total, "destination-only keys must not be classified")
}

func TestCompare_PrefixTranslation(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := map[string]store.Object{
		"in/a.txt": obj("in/a.txt", 10, t0),
		"in/b.txt": obj("in/b.txt", 20, t0),
	}
	dst := map[string]store.Object{
		"out/a.txt": obj("out/a.txt", 10, t0),
	}

	d := Compare(src, dst, PrefixTranslator("in/", "out/"))
	assert.Equal(t, []string{"in/b.txt"}, keysOf(d.NeedsCopy))
	assert.Equal(t, []string{"in/a.txt"}, keysOf(d.Unchanged))
	assert.Empty(t, d.Conflicting)
}

func TestCompare_FingerprintMismatchNeverForcesConflict(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srcObj := store.Object{Key: "a", ETag: "aaaa", Size: 10, LastModified: t0}
	dstObj := store.Object{Key: "a", ETag: "bbbb", Size: 10, LastModified: t0.Add(time.Hour)}

	// stores rewrite fingerprints on re-encrypted or multipart writes;
	// equal size plus a destination at least as new means unchanged,
	// whatever the tags say
	d := Compare(
		map[string]store.Object{"a": srcObj},
		map[string]store.Object{"a": dstObj},
		identity,
	)
	assert.Equal(t, []string{"a"}, keysOf(d.Unchanged))
	assert.True(t, d.Converged())
}

func TestDiff_PendingAndConverged(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &Diff{
		NeedsCopy:   []store.Object{obj("a", 1, t0)},
		Conflicting: []store.Object{obj("b", 2, t0)},
		Unchanged:   []store.Object{obj("c", 3, t0)},
	}
	assert.False(t, d.Converged())
	assert.ElementsMatch(t, []string{"a", "b"}, keysOf(d.Pending()))

	empty := &Diff{Unchanged: d.Unchanged}
	assert.True(t, empty.Converged())
	assert.Empty(t, empty.Pending())
}

func keysOf(objs []store.Object) []string {
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	return keys
}
