package mqueue

import (
	_ "embed"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed lua/get.lua
	getSource string

	//go:embed lua/lock.lua
	lockSource string

	//go:embed lua/extend.lua
	extendSource string

	//go:embed lua/consume.lua
	consumeSource string

	//go:embed lua/unlock.lua
	unlockSource string

	//go:embed lua/qsize.lua
	qsizeSource string
)

const (
	scriptGet     = "lq_get"
	scriptLock    = "lq_lock"
	scriptExtend  = "lq_extend_lock"
	scriptConsume = "lq_consume"
	scriptUnlock  = "lq_unlock"
	scriptQSize   = "lq_qsize"
)

func newScripts() map[string]*redis.Script {
	return map[string]*redis.Script{
		scriptGet:     redis.NewScript(getSource),
		scriptLock:    redis.NewScript(lockSource),
		scriptExtend:  redis.NewScript(extendSource),
		scriptConsume: redis.NewScript(consumeSource),
		scriptUnlock:  redis.NewScript(unlockSource),
		scriptQSize:   redis.NewScript(qsizeSource),
	}
}
