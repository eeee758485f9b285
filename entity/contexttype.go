package entity

import (
	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
)

// 任务上下文，各Manager通过它获取共享依赖
type ITaskContext interface {
	Clock() clock.Clock
	Registry() IRegistry
	LeaseManager() ILeaseManager
	EventSink() IEventSink
	RuntimeConfig() *config.RuntimeConfig
}
