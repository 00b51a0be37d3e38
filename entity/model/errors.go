package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRunInFlight       = errors.New("run already in flight for correlation id")
	ErrRunExists         = errors.New("run already exists for correlation id")
	ErrRunNotFound       = errors.New("run not found for correlation id")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrInvalidRequest    = errors.New("invalid request")
)

// ToolError 外部工具调用失败，可恢复，触发兜底计划
type ToolError struct {
	Path   string
	Detail string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Path, e.Detail, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Path, e.Detail)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ModelError 模型调用失败或返回无法解析
type ModelError struct {
	Backend string
	Detail  string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s: %s: %v", e.Backend, e.Detail, e.Err)
	}
	return fmt.Sprintf("model %s: %s", e.Backend, e.Detail)
}

func (e *ModelError) Unwrap() error { return e.Err }

// StageError 阶段内部异常，记录到 RunState
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ReadinessError 引擎依赖未初始化
type ReadinessError struct {
	Missing []string
}

func (e *ReadinessError) Error() string {
	return "engine not ready, missing: " + strings.Join(e.Missing, ", ")
}

// IsToolError 判断是否为工具错误
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

// IsModelError 判断是否为模型错误
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
