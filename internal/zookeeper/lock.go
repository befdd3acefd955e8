// internal/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/kamishop/locks" // 所有分布式锁的根节点
)

// DistributedLock 定义了一个分布式锁对象。
// 清理和补发货这类批处理任务用它保证多实例部署时只有一个执行者。
type DistributedLock struct {
	conn     *Conn  // ZooKeeper连接
	path     string // 锁的路径，例如 /kamishop/locks/order-cleanup
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	// 逐级确保锁路径存在
	lockPath := lockRoot + "/" + resourceID
	parts := strings.Split(strings.TrimPrefix(lockPath, "/"), "/")
	current := ""
	for _, part := range parts {
		current = current + "/" + part
		if ok, _, err := conn.Exists(current); err == nil && !ok {
			_, createErr := conn.Create(current, []byte(""), 0, zk.WorldACL(zk.PermAll))
			if createErr != nil && createErr != zk.ErrNodeExists {
				return nil, fmt.Errorf("failed to create lock path node %s: %w", current, createErr)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to check lock path node %s: %w", current, err)
		}
	}

	return &DistributedLock{
		conn: conn,
		path: lockPath,
	}, nil
}

// TryLock 非阻塞地尝试获取锁。拿不到时立刻放弃并清理自己的节点，
// 返回 false —— 周期性任务下一轮再试即可，不值得排队等待。
func (l *DistributedLock) TryLock() (bool, error) {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.Unlock()
		return false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	sort.Strings(children)

	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
	if myNodeName == children[0] {
		return true, nil
	}

	// 不是最小节点：别的实例持有锁
	if err := l.Unlock(); err != nil {
		return false, err
	}
	return false, nil
}

// Lock 尝试获取锁，如果获取不到则阻塞等待
func (l *DistributedLock) Lock() error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	for {
		// 2. 获取锁路径下的所有子节点
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children) // 排序，保证顺序

		// 3. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			// 是最小节点，成功获取锁
			return nil
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find previous node, something is wrong")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		// 使用 ExistsW 来设置一次性的Watcher
		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 如果在前一个节点检查时它刚好被删除了，就重试循环
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		// 阻塞等待事件
		select {
		case event := <-eventChan:
			// 如果前一个节点被删除，我们就收到通知，重新进入循环去竞争锁
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(30 * time.Second): // 设置超时，防止死等
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
