package input

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"
)

var log = logrus.WithField("module", "input")

const connectTimeout = 10 * time.Second

// Input 启动时导入的数据
type Input struct {
	Signals []entity.SignalRequest
}

// signalFile 信号灯清单文件格式
type signalFile struct {
	Signals []entity.Signal `yaml:"signals"`
}

// Init 加载启动数据
// 功能：按配置从文件或MongoDB加载信号灯清单
// 参数：ctx-上下文，c-配置，cacheDir-MongoDB数据的本地缓存目录（为空则禁用缓存）
// 返回：加载的数据与错误；未配置input.signals时返回空清单
// 算法说明：
// 1. 配置了文件路径时直接读取YAML（兼容JSON）文件
// 2. 否则先尝试读取缓存，缓存不存在时从MongoDB下载并写入缓存
// 3. 逐条校验，非法记录记录日志后跳过，重复ID保留最后一条
func Init(ctx context.Context, c config.Config, cacheDir string) (*Input, error) {
	res := &Input{Signals: make([]entity.SignalRequest, 0)}
	path := c.Input.Signals
	if path == nil {
		log.Info("no signal inventory configured")
		return res, nil
	}

	var signals []entity.Signal
	var err error
	if path.File != "" {
		signals, err = LoadFile(path.File)
	} else {
		signals, err = loadWithCache(ctx, c.Input.URI, *path, cacheDir)
	}
	if err != nil {
		return nil, err
	}
	res.Signals = toRequests(signals)
	log.Infof("loaded %d signals", len(res.Signals))
	return res, nil
}

// LoadFile 从YAML文件读取信号灯清单
func LoadFile(path string) ([]entity.Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signal file: %w", err)
	}
	var f signalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse signal file %s: %w", path, err)
	}
	return f.Signals, nil
}

// LoadMongo 从MongoDB集合下载全部信号灯
func LoadMongo(ctx context.Context, uri string, path config.InputPath) ([]entity.Signal, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}
	defer client.Disconnect(context.Background())

	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	coll := client.Database(path.DB).Collection(path.Col)
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "signalId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s.%s: %w", path.DB, path.Col, err)
	}
	var signals []entity.Signal
	if err := cursor.All(ctx, &signals); err != nil {
		return nil, fmt.Errorf("failed to decode %s.%s: %w", path.DB, path.Col, err)
	}
	log.Infof("finish fetching from %s.%s", path.DB, path.Col)
	return signals, nil
}

// loadWithCache 优先读取缓存文件，未命中时下载并写入缓存
func loadWithCache(ctx context.Context, uri string, path config.InputPath, cacheDir string) ([]entity.Signal, error) {
	cacheFile := ""
	if preCheckCache(cacheDir) {
		cacheFile = cachePath(cacheDir, path)
		if _, err := os.Stat(cacheFile); err == nil {
			log.Infof("load signals from cache %s", cacheFile)
			return LoadFile(cacheFile)
		}
	}
	signals, err := LoadMongo(ctx, uri, path)
	if err != nil {
		return nil, err
	}
	if cacheFile != "" {
		if err := saveFile(cacheFile, signals); err != nil {
			log.Warnf("failed to write cache %s: %v", cacheFile, err)
		}
	}
	return signals, nil
}

// toRequests 校验并转换为登记请求
func toRequests(signals []entity.Signal) []entity.SignalRequest {
	index := make(map[string]int)
	res := make([]entity.SignalRequest, 0, len(signals))
	for _, s := range signals {
		if err := checkSignal(s); err != nil {
			log.Errorf("ignore signal %q: %v", s.SignalID, err)
			continue
		}
		loc := s.Location
		req := entity.SignalRequest{SignalID: s.SignalID, Location: &loc, CurrentState: s.CurrentState}
		if i, ok := index[s.SignalID]; ok {
			log.Warnf("duplicated signal id %s, keep the last one", s.SignalID)
			res[i] = req
			continue
		}
		index[s.SignalID] = len(res)
		res = append(res, req)
	}
	return res
}
