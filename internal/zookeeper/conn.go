// internal/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog/log"
)

// Conn 封装 ZooKeeper 连接，只暴露锁实现需要的那部分 API。
type Conn struct {
	conn *zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接。addrs 为逗号分隔的地址列表。
func Connect(addrs string, sessionTimeout time.Duration) (*Conn, error) {
	servers := strings.Split(addrs, ",")
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper at %s: %w", addrs, err)
	}
	log.Printf("Connected to ZooKeeper at %s", addrs)
	return &Conn{conn: conn}, nil
}

func (c *Conn) Exists(path string) (bool, *zk.Stat, error) {
	return c.conn.Exists(path)
}

func (c *Conn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	return c.conn.ExistsW(path)
}

func (c *Conn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	return c.conn.Create(path, data, flags, acl)
}

func (c *Conn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	return c.conn.CreateProtectedEphemeralSequential(path, data, acl)
}

func (c *Conn) Children(path string) ([]string, *zk.Stat, error) {
	return c.conn.Children(path)
}

func (c *Conn) Delete(path string, version int32) error {
	return c.conn.Delete(path, version)
}

func (c *Conn) Close() {
	c.conn.Close()
}
