package config

import "time"

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
type InputPath struct {
	DB   string `yaml:"db,omitempty"`   // 数据库名
	Col  string `yaml:"col,omitempty"`  // 集合名
	File string `yaml:"file,omitempty"` // 文件路径（优先级高于MongoDB）
}

// Input 启动时导入的信号灯清单
type Input struct {
	URI     string     `yaml:"uri,omitempty"`     // MongoDB连接字符串
	Signals *InputPath `yaml:"signals,omitempty"` // 信号灯
}

// Server HTTP服务配置
type Server struct {
	Listen   string `yaml:"listen"`              // 监听地址
	MockMode bool   `yaml:"mock_mode,omitempty"` // 模拟模式，不连接真实信号机
}

// Override 单灯覆盖配置
type Override struct {
	DefaultDuration time.Duration `yaml:"default_duration"` // 未指定时长时的默认覆盖时长
}

// Corridor 绿波通道配置
type Corridor struct {
	LeaseDuration time.Duration `yaml:"lease_duration"`           // 通道内每个信号灯的租约时长
	SignalCap     int           `yaml:"signal_cap"`               // 单个通道最多预留的信号灯数
	WindowSize    int           `yaml:"window_size"`              // 位置更新后保留的前方信号灯数
	Mapper        string        `yaml:"mapper"`                   // 路线映射策略：sequential|nearest
	MatchRadius   float64       `yaml:"match_radius"`             // nearest策略的匹配半径（米）
	ArrivalRadius float64       `yaml:"arrival_radius,omitempty"` // 距终点小于该值（米）时自动清除通道，0为关闭
}

// Sweeper 过期租约清扫配置
type Sweeper struct {
	Interval time.Duration `yaml:"interval"`
}

// Config YAML配置文件的根结构
type Config struct {
	Server   Server   `yaml:"server"`
	Override Override `yaml:"override"`
	Corridor Corridor `yaml:"corridor"`
	Sweeper  Sweeper  `yaml:"sweeper"`
	Input    Input    `yaml:"input,omitempty"`
}
