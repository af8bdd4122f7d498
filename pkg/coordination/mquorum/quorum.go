// Package mquorum folds a set of per-server results into
// majority/completed/failure decisions and computes read-repair targets.
// It has no knowledge of Redis, scripts, or any particular primitive — it
// operates purely on the ServerResult shape.
package mquorum

import (
	"sort"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
)

// Quorum returns ⌊n/2⌋+1 for a declared cluster size n.
func Quorum(n int) int {
	return n/2 + 1
}

// MajoritySucceeded counts the results for which predicate holds and
// reports whether that count reaches quorum(nServers). nServers is the
// declared cluster size, not len(results): a client connected to fewer
// than quorum servers must already have been rejected at construction,
// but an individual operation may legitimately see fewer responses than
// nServers if some servers are unreachable.
func MajoritySucceeded(results []mscript.ServerResult, nServers int, predicate func(mscript.ServerResult) bool) bool {
	return CountMatching(results, predicate) >= Quorum(nServers)
}

// CountMatching counts how many results satisfy predicate.
func CountMatching(results []mscript.ServerResult, predicate func(mscript.ServerResult) bool) int {
	n := 0
	for _, r := range results {
		if predicate(r) {
			n++
		}
	}
	return n
}

// AnyCompleted reports whether at least one result carries the
// "already completed" logical error.
func AnyCompleted(results []mscript.ServerResult) bool {
	for _, r := range results {
		if merrors.IsLogicalError(r.Err, merrors.LogicalAlreadyCompleted) {
			return true
		}
	}
	return false
}

// Succeeding returns the subset of results that succeeded.
func Succeeding(results []mscript.ServerResult) []mscript.ServerResult {
	out := make([]mscript.ServerResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

// Failing returns the subset of results that errored (transport or
// logical), matching the given logical-error kind when kind is non-empty.
func Failing(results []mscript.ServerResult, kind string) []mscript.ServerResult {
	out := make([]mscript.ServerResult, 0, len(results))
	for _, r := range results {
		if r.Succeeded() {
			continue
		}
		if kind != "" && !merrors.IsLogicalError(r.Err, kind) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// TimestampedValue is a value associated with the wall-clock timestamp it
// was written at, as returned by the register's gs_get/gs_set scripts.
type TimestampedValue struct {
	Server mscript.Server
	Value  string
	HasTS  bool
	TS     float64
}

// Winner picks the read-quorum winner: the largest timestamp wins; ties
// are broken deterministically by lexicographically comparing the value,
// for test reproducibility.
func Winner(candidates []TimestampedValue) (TimestampedValue, bool) {
	present := make([]TimestampedValue, 0, len(candidates))
	for _, c := range candidates {
		if c.HasTS {
			present = append(present, c)
		}
	}
	if len(present) == 0 {
		if len(candidates) == 0 {
			return TimestampedValue{}, false
		}
		return candidates[0], true
	}
	sort.SliceStable(present, func(i, j int) bool {
		if present[i].TS != present[j].TS {
			return present[i].TS > present[j].TS
		}
		return present[i].Value < present[j].Value
	})
	return present[0], true
}

// ReadRepairTargets returns the servers whose observed value disagrees
// with the winner, plus the servers that errored outright (best effort:
// a failed server gets repaired blindly, without knowing what it lost).
func ReadRepairTargets(candidates []TimestampedValue, winner TimestampedValue, errored []mscript.ServerResult) []mscript.Server {
	out := make([]mscript.Server, 0, len(candidates)+len(errored))
	for _, c := range candidates {
		if c.Value != winner.Value || c.TS != winner.TS {
			out = append(out, c.Server)
		}
	}
	for _, r := range errored {
		out = append(out, r.Server)
	}
	return out
}
