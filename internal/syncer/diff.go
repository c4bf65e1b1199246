package syncer

import "github.com/objsync/objsync/internal/store"

// KeyTranslator maps a source key to its destination key.
type KeyTranslator func(string) string

// Diff is the classification of every source object against the
// destination. Destination-only keys are never visited: the synchronizer
// does not propagate deletions.
type Diff struct {
	NeedsCopy   []store.Object // absent at destination
	Conflicting []store.Object // present but different
	Unchanged   []store.Object
}

// Converged reports whether nothing is left to copy.
func (d *Diff) Converged() bool {
	return len(d.NeedsCopy) == 0 && len(d.Conflicting) == 0
}

// Pending returns the union of NeedsCopy and Conflicting.
func (d *Diff) Pending() []store.Object {
	out := make([]store.Object, 0, len(d.NeedsCopy)+len(d.Conflicting))
	out = append(out, d.NeedsCopy...)
	out = append(out, d.Conflicting...)
	return out
}

// Compare classifies each source object. Size mismatch wins over the
// timestamp comparison, and an equal-size object that is newer at the
// source is treated as changed content, never silently skipped.
// Fingerprints are deliberately left out of the comparison: stores
// rewrite them on re-encryption and multipart uploads, so a tag
// mismatch does not imply changed content and must not block
// convergence.
func Compare(src, dst map[string]store.Object, translate KeyTranslator) *Diff {
	d := &Diff{}
	for key, obj := range src {
		target, ok := dst[translate(key)]
		switch {
		case !ok:
			d.NeedsCopy = append(d.NeedsCopy, obj)
		case obj.Size != target.Size:
			d.Conflicting = append(d.Conflicting, obj)
		case !obj.LastModified.After(target.LastModified):
			d.Unchanged = append(d.Unchanged, obj)
		default:
			d.Conflicting = append(d.Conflicting, obj)
		}
	}
	return d
}
