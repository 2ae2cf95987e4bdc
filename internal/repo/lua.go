package repo

import (
	"github.com/redis/go-redis/v9"
)

// ScriptSliding runs the whole sliding-window step as one atomic unit.
var ScriptSliding = redis.NewScript(`
-- KEYS[1] = zset_key
-- ARGV[1] = now_ms
-- ARGV[2] = window_ms
-- ARGV[3] = member (string-encoded timestamp)
-- ARGV[4] = ttl_sec

local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

-- 删除窗口外的请求
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)

-- 插入前统计窗口内的请求数
local cnt = redis.call('ZCARD', KEYS[1])

-- 插入当前请求
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])

-- 空闲时自动清理
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[4]))

-- 最早的存活记录，用于计算 Retry-After
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #oldest == 0 then
  return {cnt, -1}
end
return {cnt, oldest[2]}
`)
