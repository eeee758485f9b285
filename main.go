package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/tsinghua-fib-lab/green-corridor/task"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
)

var (
	// 配置文件路径
	configPath = pflag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = pflag.String("config-data", "", "config file base64 encoded data")
	// 监听地址，非空时覆盖配置文件与环境变量
	listen = pflag.String("listen", "", "HTTP listening address, e.g. :6080")
	// 信号灯清单的缓存地址，设置为空则禁用缓存功能
	cacheDir = pflag.String("cache", "", "input cache dir path (empty means disable cache)")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = pflag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", task.SelfName)
)

func main() {
	pflag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	// 获取配置：默认值 < 配置文件 < 环境变量 < 命令行
	c, err := config.Load(*configPath, *configData, nil)
	if err != nil {
		log.Panicf("config load err: %v", err)
	}
	if *listen != "" {
		c.Server.Listen = *listen
	}
	log.Infof("%+v", c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := task.NewContext(c, task.WithCacheDir(*cacheDir))
	if err != nil {
		log.Panicf("failed to create context: %v", err)
	}
	if err := t.Init(ctx); err != nil {
		log.Panicf("failed to init: %v", err)
	}
	if err := t.Run(ctx, c.Server.Listen); err != nil {
		log.Errorf("exit with error: %v", err)
		os.Exit(1)
	}
	log.Info("bye")
}
