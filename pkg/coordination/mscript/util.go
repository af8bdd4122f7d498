package mscript

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Logger is the minimal logging surface coordination packages depend on,
// satisfied by *slog.Logger's Debug/Warn methods without importing log/slog
// directly into every package. Defaults to a no-op implementation.
type Logger interface {
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Warn(string, ...interface{})  {}

// Randint is a placeholder argument value: the Runner replaces each
// occurrence with a freshly generated random value before every per-server
// call, mirroring util.py's run_script 'randint' special case used to seed
// lq_lock's math.randomseed independently on each server.
type Randint struct{}

func resolveRandints(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if _, ok := a.(Randint); ok {
			out[i] = randInt63()
			continue
		}
		out[i] = a
	}
	return out
}

func randInt63() int64 {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		// crypto/rand failure is not something a retry can fix; a
		// predictable fallback keeps the score-bump script harmless
		// (math.random still returns a valid index) rather than panicking.
		return 1
	}
	return n.Int64()
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func panicToError(p interface{}) error {
	return fmt.Errorf("mscript: panic in mapped call: %v", p)
}
