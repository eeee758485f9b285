package task

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/entity/corridor"
	"github.com/tsinghua-fib-lab/green-corridor/entity/lease"
	"github.com/tsinghua-fib-lab/green-corridor/entity/registry"
	"github.com/tsinghua-fib-lab/green-corridor/entity/signal"
	"github.com/tsinghua-fib-lab/green-corridor/server"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
	"github.com/tsinghua-fib-lab/green-corridor/utils/input"
)

const SelfName = "green-corridor" // 本程序的服务名

var log = logrus.WithField("module", "task")

// Context 协调任务上下文
// 功能：持有一次运行的全部组件，替代全局变量；各Manager通过它获取共享依赖
// 说明：registry由Context创建并独占，生命周期与进程一致
type Context struct {
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock clock.Clock
	// 状态存储
	registry *registry.Registry
	// 实时事件推送
	hub *server.Hub

	// 租约管理器
	leaseManager *lease.Manager
	// 通道协调器
	corridorManager *corridor.Manager
	// 信号灯管理器
	signalManager *signal.Manager
	// 过期租约清扫
	sweeper *lease.Sweeper

	// HTTP服务
	server *server.Server

	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// 数据缓存目录
	cacheDir string
}

// Option 创建Context的可选项
type Option func(*Context)

// WithClock 替换时间源，测试中传入clock.Fake
func WithClock(c clock.Clock) Option {
	return func(ctx *Context) { ctx.clock = c }
}

// WithCacheDir 设置信号灯清单的本地缓存目录
func WithCacheDir(dir string) Option {
	return func(ctx *Context) { ctx.cacheDir = dir }
}

// NewContext 创建任务上下文
// 功能：按配置创建并连接所有组件
// 参数：c-已校验的配置，opts-可选项
// 返回：Context与错误（映射策略名称非法时）
// 算法说明：
// 1. 创建时钟、registry与事件推送
// 2. 租约管理器以事件推送作为接收方
// 3. 按配置选择路线映射策略，创建通道协调器与信号灯管理器
// 4. 创建清扫器与HTTP服务，并将通道协调器注册为connect RPC服务
func NewContext(c config.Config, opts ...Option) (*Context, error) {
	ctx := &Context{clock: clock.Real()}
	for _, opt := range opts {
		opt(ctx)
	}
	ctx.runtimeConfig = config.NewRuntimeConfig(c)
	ctx.registry = registry.New(ctx.clock)
	ctx.hub = server.NewHub()
	ctx.leaseManager = lease.NewManager(ctx.registry, ctx.clock, ctx.hub)

	mapper, err := corridor.NewMapper(c.Corridor.Mapper, ctx.registry, c.Corridor.MatchRadius)
	if err != nil {
		return nil, err
	}
	ctx.corridorManager = corridor.NewManager(ctx, mapper)
	ctx.signalManager = signal.NewManager(ctx, ctx.corridorManager)
	ctx.sweeper = lease.NewSweeper(ctx.leaseManager, ctx.clock, ctx.runtimeConfig.SweepInterval)

	ctx.server = server.New(ctx.clock, ctx.signalManager, ctx.corridorManager, ctx.hub, c.Server.MockMode)
	ctx.corridorManager.Register(ctx.server.Router())

	log.Infof("context created with mapper=%s cap=%d window=%d lease=%v",
		mapper.Name(), ctx.runtimeConfig.SignalCap, ctx.runtimeConfig.WindowSize, ctx.runtimeConfig.LeaseDuration)
	return ctx, nil
}

// Init 导入启动时的信号灯清单
func (ctx *Context) Init(loadCtx context.Context) error {
	res, err := input.Init(loadCtx, ctx.runtimeConfig.All, ctx.cacheDir)
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}
	for _, req := range res.Signals {
		if _, err := ctx.signalManager.Register(req); err != nil {
			log.Errorf("failed to register signal %s: %v", req.SignalID, err)
		}
	}
	log.Infof("Signal: %v", len(ctx.registry.Signals()))
	return nil
}

func (ctx *Context) Clock() clock.Clock {
	return ctx.clock
}

func (ctx *Context) Registry() entity.IRegistry {
	return ctx.registry
}

func (ctx *Context) LeaseManager() entity.ILeaseManager {
	return ctx.leaseManager
}

func (ctx *Context) EventSink() entity.IEventSink {
	return ctx.hub
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) CorridorManager() entity.ICorridorManager {
	return ctx.corridorManager
}

func (ctx *Context) SignalManager() entity.ISignalManager {
	return ctx.signalManager
}

func (ctx *Context) Sweeper() *lease.Sweeper {
	return ctx.sweeper
}

func (ctx *Context) Hub() *server.Hub {
	return ctx.hub
}

// Handler HTTP入口，包含JSON接口、websocket与connect RPC
func (ctx *Context) Handler() http.Handler {
	return ctx.server
}
