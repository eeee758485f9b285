package entity

import "errors"

// 错误分类，调用方用errors.Is区分并映射为客户端错误码
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
