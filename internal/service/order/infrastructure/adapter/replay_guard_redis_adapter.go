// internal/service/order/infrastructure/adapter/replay_guard_redis_adapter.go
package adapter

import (
	"context"
	"fmt"

	"kamishop/internal/pkg/redis"
)

const (
	replayGuardScriptName = "payment_dedupe"
	// 事件指纹保留 7 天，超过这个窗口的重放由发货事务的幂等性接住
	replayGuardTTLSeconds = 7 * 24 * 3600
)

// ReplayGuardRedisAdapter 是 port.ReplayGuard 的 Redis 实现。
// 一段 Lua 脚本原子地完成"查重 + 记录"，避免 GET/SET 之间的窗口。
type ReplayGuardRedisAdapter struct {
	redisClient *redis.Client
}

// NewReplayGuardRedisAdapter 创建适配器并在启动时加载脚本。
func NewReplayGuardRedisAdapter(redisClient *redis.Client) (*ReplayGuardRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(replayGuardScriptName, replayGuardScript); err != nil {
		return nil, fmt.Errorf("failed to load payment dedupe script: %w", err)
	}
	return &ReplayGuardRedisAdapter{redisClient: redisClient}, nil
}

// FirstSeen 实现 port.ReplayGuard。
func (a *ReplayGuardRedisAdapter) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("payment:seen:{%s}", eventID)

	result, err := a.redisClient.RunScript(ctx, replayGuardScriptName, []string{key}, replayGuardTTLSeconds)
	if err != nil {
		return false, fmt.Errorf("replay guard failed to run script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

var replayGuardScript = `
-- KEYS[1]: 事件指纹 Key, 例如: payment:seen:{evt_123}
-- ARGV[1]: 过期秒数

-- SET NX: 第一次见到该事件时写入并返回 1
if redis.call('set', KEYS[1], 1, 'NX', 'EX', tonumber(ARGV[1])) then
    return 1
end

-- Key 已存在: 重复事件
return 0
`
