package mqueue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func nowFloat() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func redisZ(member string, score float64) redis.Z {
	return redis.Z{Score: score, Member: member}
}

func toString(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
