package tool

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Result 工具调用结果，保留原始 JSON 按路径读取
type Result struct {
	Path string
	Raw  []byte
}

// Get 按 gjson 路径读取字段，nil 结果返回不存在
func (r *Result) Get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Raw, path)
}

// Map 解码为 map，失败返回空 map
func (r *Result) Map() map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	_ = json.Unmarshal(r.Raw, &out)
	return out
}

// MarshalJSON 原样输出工具返回的 JSON
func (r *Result) MarshalJSON() ([]byte, error) {
	if r == nil || len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}
