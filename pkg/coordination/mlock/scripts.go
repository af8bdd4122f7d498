package mlock

import (
	_ "embed"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed lua/lock.lua
	lockSource string

	//go:embed lua/unlock.lua
	unlockSource string

	//go:embed lua/extend.lua
	extendSource string
)

const (
	scriptLock   = "l_lock"
	scriptUnlock = "l_unlock"
	scriptExtend = "l_extend"
)

func newScripts() map[string]*redis.Script {
	return map[string]*redis.Script{
		scriptLock:   redis.NewScript(lockSource),
		scriptUnlock: redis.NewScript(unlockSource),
		scriptExtend: redis.NewScript(extendSource),
	}
}
