// internal/service/card/domain/card.go
package domain

import (
	"errors"
	"time"
)

var (
	ErrCardNotFound = errors.New("card code not found")
	ErrCodeExists   = errors.New("card code already exists")

	// ErrNoStock 不是故障：池子空了是一个可恢复状态，
	// 已支付的订单停在 PAID，等补货后由对账批次重试。
	ErrNoStock = errors.New("no unused card code available")

	// ErrCardAlreadyUsed 是不变量被破坏的信号。卡密只允许
	// unused -> used 流转一次，任何二次消费的尝试都必须显式暴露。
	ErrCardAlreadyUsed = errors.New("card code already used")
)

// 导入卡密的长度边界
const (
	MinCodeLength = 3
	MaxCodeLength = 50
)

// Card 是单个卡密。Code 全局唯一且创建后不可变；
// OrderID 只在被消费的那一刻写入一次，之后不再改写。
type Card struct {
	ID        int64
	ProductID int64
	Code      string
	IsUsed    bool
	UsedAt    *time.Time
	OrderID   string
	CreatedAt time.Time
}
