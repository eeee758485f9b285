package rpcutil

import (
	"encoding/json"
	"errors"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

// JSONCodec 以encoding/json编解码普通Go结构体的connect codec
// 说明：服务不使用protobuf生成的消息类型，替换connect默认的"json"（protojson）编解码
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// HandlerOptions 服务端统一选项
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{connect.WithCodec(JSONCodec{})}
}

// ClientOptions 客户端统一选项
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(JSONCodec{})}
}

// Error 将领域错误映射为connect错误码
func Error(err error) *connect.Error {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, entity.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, entity.ErrConflict):
		return connect.NewError(connect.CodeAlreadyExists, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
