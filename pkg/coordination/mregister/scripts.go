package mregister

import (
	_ "embed"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed lua/get.lua
	getSource string

	//go:embed lua/set.lua
	setSource string

	//go:embed lua/exists.lua
	existsSource string

	//go:embed lua/ttl.lua
	ttlSource string
)

const (
	scriptGet    = "gs_get"
	scriptSet    = "gs_set"
	scriptExists = "gs_exists"
	scriptTTL    = "gs_ttl"

	// histKey is the shared ordered-set key co-located with every register
	// value, holding write timestamps keyed by path.
	histKey = ".majorityredis_getset"
)

func newScripts() map[string]*redis.Script {
	return map[string]*redis.Script{
		scriptGet:    redis.NewScript(getSource),
		scriptSet:    redis.NewScript(setSource),
		scriptExists: redis.NewScript(existsSource),
		scriptTTL:    redis.NewScript(ttlSource),
	}
}
