package util

import (
	"encoding/json"
)

// GetJson 用于日志输出
func GetJson(v interface{}) string {
	marshal, _ := json.Marshal(v)
	return string(marshal)
}
