package config

import "time"

// RuntimeConfig 运行时配置
// 功能：将校验后的配置整理为各模块直接读取的取值
type RuntimeConfig struct {
	All Config // 全部配置

	OverrideDuration time.Duration
	LeaseDuration    time.Duration
	SignalCap        int
	WindowSize       int
	MatchRadius      float64
	ArrivalRadius    float64
	SweepInterval    time.Duration
}

// NewRuntimeConfig 根据配置初始化运行时配置
func NewRuntimeConfig(config Config) *RuntimeConfig {
	return &RuntimeConfig{
		All:              config,
		OverrideDuration: config.Override.DefaultDuration,
		LeaseDuration:    config.Corridor.LeaseDuration,
		SignalCap:        config.Corridor.SignalCap,
		WindowSize:       config.Corridor.WindowSize,
		MatchRadius:      config.Corridor.MatchRadius,
		ArrivalRadius:    config.Corridor.ArrivalRadius,
		SweepInterval:    config.Sweeper.Interval,
	}
}
