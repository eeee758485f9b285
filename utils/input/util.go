package input

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
	"gopkg.in/yaml.v2"
)

// checkSignal 检查信号灯记录的有效性
func checkSignal(s entity.Signal) error {
	if s.SignalID == "" {
		return errors.New("empty signal id")
	}
	if !s.Location.Valid() {
		return fmt.Errorf("location %v out of range", s.Location)
	}
	if s.CurrentState != "" && !s.CurrentState.Valid() {
		return fmt.Errorf("invalid state %q", s.CurrentState)
	}
	return nil
}

// preCheckCache 预检查缓存目录
// 返回：true表示启用缓存
// 说明：目录为空或不存在时禁用缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("disable input cache")
		return false
	}
	if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
		log.Infof("enable input cache at %s", cacheDir)
		return true
	}
	log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
	return false
}

// cachePath 缓存文件路径：<cacheDir>/<db>.<col>.yaml
func cachePath(cacheDir string, path config.InputPath) string {
	return filepath.Join(cacheDir, fmt.Sprintf("%s.%s.yaml", path.DB, path.Col))
}

func saveFile(path string, signals []entity.Signal) error {
	data, err := yaml.Marshal(signalFile{Signals: signals})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
