package obfuscation

import (
	"encoding/binary"
	"sort"

	"github.com/minio/highwayhash"

	"github.com/zskulcsar/code-duplication-scanner/internal/pylang"
)

// digestKey keys the map digest. Changing it changes every recorded digest.
var digestKey = []byte("pyobfuscate/rename-map/digest/v1")

// RenameMap is an injective mapping from original identifiers to generated
// ones, plus the subset of originals renamed on likely-local evidence.
type RenameMap struct {
	forward     map[string]string
	reverse     map[string]string
	likelyLocal map[string]struct{}
}

// NewRenameMap builds a RenameMap from an explicit mapping. Entries of
// likelyLocal without a mapping are ignored.
func NewRenameMap(mapping map[string]string, likelyLocal ...string) *RenameMap {
	rm := &RenameMap{
		forward:     make(map[string]string, len(mapping)),
		reverse:     make(map[string]string, len(mapping)),
		likelyLocal: map[string]struct{}{},
	}
	for orig, gen := range mapping {
		rm.forward[orig] = gen
		rm.reverse[gen] = orig
	}
	for _, n := range likelyLocal {
		if _, ok := rm.forward[n]; ok {
			rm.likelyLocal[n] = struct{}{}
		}
	}
	return rm
}

// Lookup returns the generated name for original. Dunder names never map.
func (rm *RenameMap) Lookup(original string) (string, bool) {
	if pylang.IsDunder(original) {
		return "", false
	}
	gen, ok := rm.forward[original]
	return gen, ok
}

// Original returns the original name a generated name stands for.
func (rm *RenameMap) Original(generated string) (string, bool) {
	orig, ok := rm.reverse[generated]
	return orig, ok
}

// HasKey reports whether name is an original the map renames.
func (rm *RenameMap) HasKey(name string) bool {
	_, ok := rm.forward[name]
	return ok
}

// HasValue reports whether name is a generated name.
func (rm *RenameMap) HasValue(name string) bool {
	_, ok := rm.reverse[name]
	return ok
}

// IsLikelyLocal reports whether original was renamed on likely-local
// evidence only.
func (rm *RenameMap) IsLikelyLocal(original string) bool {
	_, ok := rm.likelyLocal[original]
	return ok
}

// Len returns the number of mapped names.
func (rm *RenameMap) Len() int { return len(rm.forward) }

// Names returns the original names in byte-wise ascending order.
func (rm *RenameMap) Names() []string {
	out := make([]string, 0, len(rm.forward))
	for n := range rm.forward {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Mapping returns a copy of the forward mapping.
func (rm *RenameMap) Mapping() map[string]string {
	out := make(map[string]string, len(rm.forward))
	for k, v := range rm.forward {
		out[k] = v
	}
	return out
}

// Digest returns a 64-bit HighwayHash over the sorted (original, generated)
// pairs and the likely-local flags. Equal maps have equal digests.
func (rm *RenameMap) Digest() uint64 {
	h, err := highwayhash.New64(digestKey)
	if err != nil {
		// Only returned for a key that is not 32 bytes long.
		panic(err)
	}
	var lenBuf [binary.MaxVarintLen64]byte
	write := func(s string) {
		n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
		h.Write(lenBuf[:n])
		h.Write([]byte(s))
	}
	for _, orig := range rm.Names() {
		write(orig)
		write(rm.forward[orig])
		if rm.IsLikelyLocal(orig) {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return h.Sum64()
}

// BuildRenameMap generates the rename map for idx. Targets are the
// renameable candidates and attributes that are neither external nor
// preserved, taken in byte-wise order; each gets the first alphabetic name
// that collides with no target, external, preserved, reserved, or already
// generated name.
func BuildRenameMap(idx *ProjectIndex) *RenameMap {
	targetSet := map[string]struct{}{}
	add := func(s NameSet) {
		for n := range s.m {
			if idx.ExternalSymbols.Has(n) || idx.Preserved.Has(n) || !pylang.IsRenameable(n) {
				continue
			}
			targetSet[n] = struct{}{}
		}
	}
	add(idx.RenameCandidates)
	add(idx.Attributes)

	targets := make([]string, 0, len(targetSet))
	for n := range targetSet {
		targets = append(targets, n)
	}
	sort.Strings(targets)

	// The blocked set never changes, so resuming after the last issued
	// name yields the same names as rescanning from the start.
	seq := &pylang.Sequence{Persistent: true, Blocked: func(name string) bool {
		if _, ok := targetSet[name]; ok {
			return true
		}
		return idx.ExternalSymbols.Has(name) || idx.Preserved.Has(name) || pylang.IsReserved(name)
	}}

	rm := &RenameMap{
		forward:     make(map[string]string, len(targets)),
		reverse:     make(map[string]string, len(targets)),
		likelyLocal: map[string]struct{}{},
	}
	for _, orig := range targets {
		gen := seq.Next()
		rm.forward[orig] = gen
		rm.reverse[gen] = orig
		if idx.LikelyLocalDynamicAttributes.Has(orig) {
			rm.likelyLocal[orig] = struct{}{}
		}
	}
	return rm
}
