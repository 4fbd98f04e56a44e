package eventbus

import (
	"fmt"
	"time"

	"github.com/dep2p/go-minithrottle/internal/util/logger"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

var log = logger.Logger("eventbus")

// 默认队列容量
const (
	// UpdatesCapacity 状态变更队列容量
	UpdatesCapacity = 64
	// InputsCapacity 本地输入队列容量（与键盘扫描队列一致，保持很小）
	InputsCapacity = 3
	// DiagCapacity 诊断文本队列容量
	DiagCapacity = 256
	// CVCapacity CV 结果队列容量
	CVCapacity = 4
)

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 进程内所有有界队列
type Bus struct {
	// Updates 共享状态变更
	Updates *Queue[types.Change]

	// Inputs 本地输入事件
	Inputs *Queue[types.InputEvent]

	// Diag 诊断文本行
	Diag *Queue[string]

	// CV 编程轨读写结果
	CV *Queue[types.CVResult]
}

// NewBus 按默认容量创建
func NewBus() *Bus {
	return NewBusWithCapacity(DiagCapacity)
}

// NewBusWithCapacity 指定诊断队列容量创建
func NewBusWithCapacity(diag int) *Bus {
	return &Bus{
		Updates: NewQueue[types.Change]("updates", UpdatesCapacity),
		Inputs:  NewQueue[types.InputEvent]("inputs", InputsCapacity),
		Diag:    NewQueue[string]("diag", diag),
		CV:      NewQueue[types.CVResult]("cv", CVCapacity),
	}
}

// Diagf 格式化一行诊断文本并入队
//
// 行首带时间戳；bus 为 nil 时直接忽略。
func (b *Bus) Diagf(format string, args ...any) {
	if b == nil {
		return
	}
	line := time.Now().Format("15:04:05.000") + " " + fmt.Sprintf(format, args...)
	b.Diag.Emit(line)
}

// Stats 各队列的丢弃计数
func (b *Bus) Stats() map[string]int64 {
	return map[string]int64{
		b.Updates.Name(): b.Updates.Dropped(),
		b.Inputs.Name():  b.Inputs.Dropped(),
		b.Diag.Name():    b.Diag.Dropped(),
		b.CV.Name():      b.CV.Dropped(),
	}
}

// Close 关闭全部队列
func (b *Bus) Close() {
	b.Updates.Close()
	b.Inputs.Close()
	b.Diag.Close()
	b.CV.Close()
}
