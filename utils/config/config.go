package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	MapperSequential = "sequential"
	MapperNearest    = "nearest"
)

// Default 返回默认配置，与交通控制器的参考行为一致
func Default() Config {
	return Config{
		Server:   Server{Listen: ":6080"},
		Override: Override{DefaultDuration: 60 * time.Second},
		Corridor: Corridor{
			LeaseDuration: 300 * time.Second,
			SignalCap:     10,
			WindowSize:    5,
			Mapper:        MapperSequential,
			MatchRadius:   150,
		},
		Sweeper: Sweeper{Interval: 60 * time.Second},
	}
}

// Load 加载配置
// 功能：以默认配置为底，依次叠加配置文件（或base64编码的配置数据）与环境变量，最后校验
// 参数：path-配置文件路径，data-base64编码的配置数据，lookup-环境变量查询函数（nil时使用os.LookupEnv）
// 返回：最终配置与错误
// 说明：配置文件使用yaml.UnmarshalStrict，未知字段直接报错
func Load(path, data string, lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var file []byte
	var err error
	switch {
	case path != "":
		if file, err = os.ReadFile(path); err != nil {
			return c, fmt.Errorf("config file load err: %w", err)
		}
	case data != "":
		if file, err = base64.StdEncoding.DecodeString(data); err != nil {
			return c, fmt.Errorf("config data load err: %w", err)
		}
	}
	if len(file) > 0 {
		if err := yaml.UnmarshalStrict(file, &c); err != nil {
			return c, fmt.Errorf("config file parse err: %w", err)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := c.ApplyEnv(lookup); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// ApplyEnv 用环境变量覆盖配置项
// 说明：时长类变量接受秒数（"60"）或Go时长格式（"1m"）
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := ParseSeconds(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN_ADDR", &c.Server.Listen)
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Listen = ":" + v
	}
	if v, ok := lookup("MOCK_MODE"); ok && v != "" {
		c.Server.MockMode = v == "true"
	}
	duration("OVERRIDE_DEFAULT_DURATION", &c.Override.DefaultDuration)
	duration("CORRIDOR_LEASE_DURATION", &c.Corridor.LeaseDuration)
	integer("CORRIDOR_SIGNAL_CAP", &c.Corridor.SignalCap)
	integer("UPCOMING_WINDOW_SIZE", &c.Corridor.WindowSize)
	str("CORRIDOR_MAPPER", &c.Corridor.Mapper)
	float("CORRIDOR_MATCH_RADIUS", &c.Corridor.MatchRadius)
	float("CORRIDOR_ARRIVAL_RADIUS", &c.Corridor.ArrivalRadius)
	duration("SWEEP_INTERVAL", &c.Sweeper.Interval)
	str("SIGNALS_MONGO_URI", &c.Input.URI)
	if v, ok := lookup("SIGNALS_FILE"); ok && v != "" {
		if c.Input.Signals == nil {
			c.Input.Signals = &InputPath{}
		}
		c.Input.Signals.File = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate 校验配置取值
func (c Config) Validate() error {
	switch {
	case c.Server.Listen == "":
		return fmt.Errorf("server.listen must not be empty")
	case c.Override.DefaultDuration <= 0:
		return fmt.Errorf("override.default_duration must be positive, got %v", c.Override.DefaultDuration)
	case c.Corridor.LeaseDuration <= 0:
		return fmt.Errorf("corridor.lease_duration must be positive, got %v", c.Corridor.LeaseDuration)
	case c.Corridor.SignalCap <= 0:
		return fmt.Errorf("corridor.signal_cap must be positive, got %d", c.Corridor.SignalCap)
	case c.Corridor.WindowSize <= 0:
		return fmt.Errorf("corridor.window_size must be positive, got %d", c.Corridor.WindowSize)
	case c.Corridor.Mapper != MapperSequential && c.Corridor.Mapper != MapperNearest:
		return fmt.Errorf("corridor.mapper must be %s or %s, got %q", MapperSequential, MapperNearest, c.Corridor.Mapper)
	case c.Corridor.MatchRadius <= 0:
		return fmt.Errorf("corridor.match_radius must be positive, got %v", c.Corridor.MatchRadius)
	case c.Corridor.ArrivalRadius < 0:
		return fmt.Errorf("corridor.arrival_radius must not be negative, got %v", c.Corridor.ArrivalRadius)
	case c.Sweeper.Interval <= 0:
		return fmt.Errorf("sweeper.interval must be positive, got %v", c.Sweeper.Interval)
	case c.Input.Signals != nil && c.Input.Signals.File == "" && (c.Input.URI == "" || c.Input.Signals.DB == "" || c.Input.Signals.Col == ""):
		return fmt.Errorf("input.signals needs either file or uri+db+col")
	}
	return nil
}

// ParseSeconds 解析时长，纯数字按秒计
func ParseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}
