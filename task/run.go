package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// waitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：ctx-取消时提前返回，addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
func waitForServerReady(ctx context.Context, addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for range retryCount {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Run 运行服务直到runCtx取消
// 功能：并发运行HTTP服务与过期租约清扫，任一失败或收到取消时整体退出
// 参数：runCtx-生命周期上下文，listen-监听地址
// 算法说明：
// 1. HTTP服务协程：ListenAndServe，正常关闭返回的ErrServerClosed不视为错误
// 2. 清扫协程：按sweeper.interval周期回收过期租约
// 3. 关闭协程：等待取消后优雅关闭HTTP服务并断开websocket客户端
func (ctx *Context) Run(runCtx context.Context, listen string) error {
	if ctx.closed.Load() {
		return errors.New("context already closed")
	}
	g, gctx := errgroup.WithContext(runCtx)
	srv := &http.Server{
		Addr:              listen,
		Handler:           ctx.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Infof("%s listening on %s", SelfName, listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ctx.sweeper.Run(gctx)
	})
	g.Go(func() error {
		if err := waitForServerReady(gctx, healthURL(listen), 50, 100*time.Millisecond); err != nil {
			log.Warnf("readiness check: %v", err)
		} else {
			log.Info("server ready")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close 断开实时事件客户端
func (ctx *Context) Close() {
	if ctx.closed.Swap(true) {
		return
	}
	ctx.hub.Close()
	log.Info("context closed")
}

func healthURL(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		listen = "localhost" + listen
	}
	return "http://" + listen + "/health"
}
