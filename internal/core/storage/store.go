// Package storage 提供基于 BadgerDB 的配置存储
//
// Store 把设备配置保存为带前缀的键值对，值一律以文本形式存放，
// 读取时按需解析。键不存在或解析失败时返回调用方给出的默认值。
//
// # 使用示例
//
//	store, err := storage.Open(cfg.Storage)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	port := store.GetInt("relayPort", 12090)
//	_ = store.PutString("tname", "yard")
package storage

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/util/logger"
)

var log = logger.Logger("storage")

// configPrefix 配置项键前缀
var configPrefix = []byte("cfg/")

// ErrClosed 存储已关闭
var ErrClosed = errors.New("storage: closed")

// Store 配置存储
type Store struct {
	db     *badger.DB
	prefix []byte
	closed atomic.Bool
}

// Open 打开存储，cfg.Dir 为空时使用内存模式
func Open(cfg config.StorageConfig) (*Store, error) {
	var opts badger.Options
	if cfg.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir).
			WithSyncWrites(true).
			WithNumVersionsToKeep(1)
	}
	opts = opts.WithLogger(&badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	log.Debug("配置存储已打开", "dir", cfg.Dir, "inMemory", cfg.Dir == "")
	return &Store{db: db, prefix: configPrefix}, nil
}

// Close 关闭存储
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) key(name string) []byte {
	k := make([]byte, len(s.prefix)+len(name))
	copy(k, s.prefix)
	copy(k[len(s.prefix):], name)
	return k
}

// get 读取原始值，第二个返回值表示是否存在
func (s *Store) get(name string) (string, bool) {
	if s.closed.Load() {
		return "", false
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			log.Warn("读取配置失败", "key", name, "error", err)
		}
		return "", false
	}
	return string(value), true
}

func (s *Store) put(name, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(name), []byte(value))
	})
}

// ============================================================================
//                              读取
// ============================================================================

// GetString 读取字符串
func (s *Store) GetString(name, def string) string {
	if v, ok := s.get(name); ok {
		return v
	}
	return def
}

// GetInt 读取整数
func (s *Store) GetInt(name string, def int) int {
	v, ok := s.get(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("配置值不是整数", "key", name, "value", v)
		return def
	}
	return n
}

// GetFloat 读取浮点数
func (s *Store) GetFloat(name string, def float64) float64 {
	v, ok := s.get(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("配置值不是数字", "key", name, "value", v)
		return def
	}
	return f
}

// GetBool 读取布尔值（接受 0/1 与 true/false）
func (s *Store) GetBool(name string, def bool) bool {
	v, ok := s.get(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("配置值不是布尔值", "key", name, "value", v)
		return def
	}
	return b
}

// ============================================================================
//                              写入
// ============================================================================

// PutString 写入字符串
func (s *Store) PutString(name, value string) error {
	return s.put(name, value)
}

// PutInt 写入整数
func (s *Store) PutInt(name string, value int) error {
	return s.put(name, strconv.Itoa(value))
}

// PutFloat 写入浮点数
func (s *Store) PutFloat(name string, value float64) error {
	return s.put(name, strconv.FormatFloat(value, 'g', -1, 64))
}

// PutBool 写入布尔值（存为 0/1）
func (s *Store) PutBool(name string, value bool) error {
	if value {
		return s.put(name, "1")
	}
	return s.put(name, "0")
}

// Delete 删除配置项
func (s *Store) Delete(name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(name))
	})
}

// Keys 返回所有配置项名称
func (s *Store) Keys() ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(s.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// ============================================================================
//                              badger 日志适配
// ============================================================================

// badgerLogger 把 badger 的日志转到 storage 子系统
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Debug(fmt.Sprintf(format, args...))
}
