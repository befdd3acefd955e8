// internal/service/order/interfaces/workers.go
package interfaces

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kamishop/internal/service/order/application"
	"kamishop/internal/zookeeper"
)

// leaderLock 是批处理任务抢占执行权的接口，测试里用假实现替换。
// 周期任务用非阻塞的 TryLock，拿不到就等下一轮；
// 管理端的手动触发用阻塞的 Lock，等并发的 worker 轮次结束再执行。
type leaderLock interface {
	TryLock() (bool, error)
	Lock() error
	Unlock() error
}

// CleanupWorker 周期性删除超时未支付的订单。
// 多实例部署时通过 ZooKeeper 锁保证每一轮只有一个实例执行。
type CleanupWorker struct {
	svc      *application.OrderService
	lock     leaderLock
	interval time.Duration
	hours    int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewCleanupWorker(svc *application.OrderService, conn *zookeeper.Conn, interval time.Duration, hours int) (*CleanupWorker, error) {
	lock, err := zookeeper.NewDistributedLock(conn, "order-cleanup")
	if err != nil {
		return nil, err
	}
	return &CleanupWorker{
		svc:      svc,
		lock:     lock,
		interval: interval,
		hours:    hours,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start 启动清理循环，阻塞直到 Stop 被调用或 ctx 结束
func (w *CleanupWorker) Start(ctx context.Context) {
	defer close(w.doneCh)
	log.Printf("Cleanup worker started, interval=%s, pending orders older than %dh will be removed", w.interval, w.hours)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	acquired, err := w.lock.TryLock()
	if err != nil {
		log.Printf("ERROR: Cleanup worker failed to acquire lock: %v", err)
		return
	}
	if !acquired {
		// 别的实例在跑这一轮
		return
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			log.Printf("ERROR: Cleanup worker failed to release lock: %v", err)
		}
	}()

	deleted, err := w.svc.CleanupUnpaidOrders(ctx, w.hours)
	if err != nil {
		log.Printf("ERROR: Cleanup round failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Cleanup round removed %d expired pending orders", deleted)
	}
}

// Stop 通知循环退出并等待当前轮次结束
func (w *CleanupWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

// ReconcileWorker 周期性补发：已支付但因缺货等原因未发货的订单重新尝试发卡
type ReconcileWorker struct {
	svc      *application.OrderService
	lock     leaderLock
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewReconcileWorker(svc *application.OrderService, conn *zookeeper.Conn, interval time.Duration) (*ReconcileWorker, error) {
	lock, err := zookeeper.NewDistributedLock(conn, "order-reconcile")
	if err != nil {
		return nil, err
	}
	return &ReconcileWorker{
		svc:      svc,
		lock:     lock,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	defer close(w.doneCh)
	log.Printf("Reconcile worker started, interval=%s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	acquired, err := w.lock.TryLock()
	if err != nil {
		log.Printf("ERROR: Reconcile worker failed to acquire lock: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			log.Printf("ERROR: Reconcile worker failed to release lock: %v", err)
		}
	}()

	delivered, err := w.svc.ProcessUndelivered(ctx)
	if err != nil {
		log.Printf("ERROR: Reconcile round failed: %v", err)
		return
	}
	if delivered > 0 {
		log.Printf("Reconcile round delivered %d previously stuck orders", delivered)
	}
}

func (w *ReconcileWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}
