// Package interfaces 定义 MiniThrottle 公共接口
//
// 本文件定义持久化配置存储接口。
package interfaces

// ConfigStore 定义键值配置存储
//
// 读取方法在键不存在或值无法解析时返回给定默认值。
type ConfigStore interface {
	GetString(key, def string) string
	GetInt(key string, def int) int
	GetFloat(key string, def float64) float64
	GetBool(key string, def bool) bool

	PutString(key, value string) error
	PutInt(key string, value int) error
	PutFloat(key string, value float64) error
	PutBool(key string, value bool) error

	// Delete 删除键，键不存在时不报错
	Delete(key string) error

	// Keys 返回所有键（按字典序）
	Keys() ([]string, error)
}
