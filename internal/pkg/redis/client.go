// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，并维护一个命名 Lua 脚本注册表。
// 脚本在启动时加载一次，之后通过名字执行（EVALSHA 带自动回退）。
type Client struct {
	rdb redis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient 创建客户端。addrs 为逗号分隔的地址列表，
// 单地址时走普通模式，多地址时走集群模式。
func NewClient(addrs string) (*Client, error) {
	list := strings.Split(addrs, ",")
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: list,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addrs, err)
	}

	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}, nil
}

// LoadScriptFromContent 注册一段 Lua 脚本并预热到服务端脚本缓存。
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := redis.NewScript(content)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.rdb).Err(); err != nil {
		return fmt.Errorf("failed to load script %q: %w", name, err)
	}

	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 按名字执行已注册的脚本。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// GetClient 暴露底层客户端，供需要 pipeline 等原生能力的调用方使用。
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
