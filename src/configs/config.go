package configs

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bililive-go/docstore/src/pkg/indexname"
)

// RPC 管理接口
type RPC struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Bind   string `yaml:"bind" json:"bind"`
}

var defaultRPC = RPC{
	Enable: false,
	Bind:   "127.0.0.1:8090",
}

func (r *RPC) verify() error {
	if r == nil {
		return nil
	}
	if !r.Enable {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", r.Bind); err != nil {
		return fmt.Errorf("无效的RPC绑定地址: %w", err)
	}
	return nil
}

type Log struct {
	OutPutFolder string `yaml:"out_put_folder" json:"out_put_folder"`
	SaveLastLog  bool   `yaml:"save_last_log" json:"save_last_log"`
	SaveEveryLog bool   `yaml:"save_every_log" json:"save_every_log"`
	// RotateDays 按天滚动日志时最多保留的天数（<=0 表示不清理）
	RotateDays int `yaml:"rotate_days" json:"rotate_days"`
}

// Elasticsearch 搜索集群连接信息
type Elasticsearch struct {
	Addresses []string `yaml:"addresses" json:"addresses"`
	Username  string   `yaml:"username" json:"username"`
	Password  string   `yaml:"password" json:"-"`
	// IndexPrefix 所有版本化索引名的前缀，如 "nh-"
	IndexPrefix string `yaml:"index_prefix" json:"index_prefix"`
}

func (e *Elasticsearch) verify() error {
	if len(e.Addresses) == 0 {
		return errors.New("未配置 Elasticsearch 地址")
	}
	for _, addr := range e.Addresses {
		u, err := url.Parse(addr)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf(`无效的 Elasticsearch 地址 "%s"`, addr)
		}
	}
	// 前缀以 -<digits> 结尾时索引名无法唯一解析
	if e.IndexPrefix != "" {
		if err := indexname.ValidLogicalName(strings.TrimSuffix(e.IndexPrefix, "-")); err != nil {
			return fmt.Errorf(`无效的索引前缀 "%s"`, e.IndexPrefix)
		}
	}
	return nil
}

// Redis 锁、写门闸与缓存共用的 Redis，Address 为空时使用进程内实现
type Redis struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

// Cache 响应缓存
type Cache struct {
	// Prefix Finalize 删除旧代索引后清理的缓存 key 前缀
	Prefix string `yaml:"prefix" json:"prefix"`
	// LocalSize 进程内缓存容量，<=0 表示不启用
	LocalSize int `yaml:"local_size" json:"local_size"`
}

// Migration 迁移引擎参数
type Migration struct {
	LockKey           string        `yaml:"lock_key" json:"lock_key"`
	LockTTL           time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	LockRetryInterval time.Duration `yaml:"lock_retry_interval" json:"lock_retry_interval"`
	RollbackTimeout   time.Duration `yaml:"rollback_timeout" json:"rollback_timeout"`
	// HistoryPath 迁移执行记录的 sqlite 文件，为空时不记录
	HistoryPath string `yaml:"history_path" json:"history_path"`
}

func (m *Migration) verify() error {
	if m.LockKey == "" {
		return errors.New("迁移锁的 key 不能为空")
	}
	if m.LockTTL < time.Second {
		return errors.New("迁移锁的存活时间最小值为 1 秒")
	}
	if m.LockRetryInterval <= 0 || m.LockRetryInterval >= m.LockTTL {
		return errors.New("迁移锁的重试间隔必须大于 0 且小于锁的存活时间")
	}
	if m.RollbackTimeout <= 0 {
		return errors.New("回滚超时必须大于 0")
	}
	return nil
}

// Sentry 错误上报，DSN 为空时禁用
type Sentry struct {
	DSN         string `yaml:"dsn" json:"-"`
	Environment string `yaml:"environment" json:"environment"`
}

// Config content all config info.
type Config struct {
	File          string        `yaml:"-" json:"-"`
	Debug         bool          `yaml:"debug" json:"debug"`
	Log           Log           `yaml:"log" json:"log"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch" json:"elasticsearch"`
	Redis         Redis         `yaml:"redis" json:"redis"`
	Cache         Cache         `yaml:"cache" json:"cache"`
	Migration     Migration     `yaml:"migration" json:"migration"`
	RPC           RPC           `yaml:"rpc" json:"rpc"`
	Sentry        Sentry        `yaml:"sentry" json:"sentry"`
}

// 使用 atomic.Value 存放当前配置指针，避免并发读写造成 data race
var config atomic.Value // stores *Config

// 当前 Debug 值的快照，提供无锁读取
var currentDebug atomic.Bool

func SetCurrentConfig(cfg *Config) {
	if cfg == nil {
		config.Store((*Config)(nil))
		currentDebug.Store(false)
		return
	}
	config.Store(cfg)
	currentDebug.Store(cfg.Debug)
}

func GetCurrentConfig() *Config {
	v := config.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// IsDebug 提供并发安全、低开销的 Debug 值读取
func IsDebug() bool {
	return currentDebug.Load()
}

var defaultConfig = Config{
	Debug: false,
	Log: Log{
		OutPutFolder: "./",
		SaveLastLog:  true,
		SaveEveryLog: false,
		RotateDays:   7,
	},
	Elasticsearch: Elasticsearch{
		Addresses: []string{"http://127.0.0.1:9200"},
	},
	Cache: Cache{
		Prefix:    "docstore:",
		LocalSize: 1024,
	},
	Migration: Migration{
		LockKey:           "maintenance:migrations",
		LockTTL:           30 * time.Second,
		LockRetryInterval: 500 * time.Millisecond,
		RollbackTimeout:   2 * time.Minute,
		HistoryPath:       "",
	},
	RPC: defaultRPC,
}

func NewConfig() *Config {
	config := defaultConfig
	config.Elasticsearch.Addresses = append([]string(nil), defaultConfig.Elasticsearch.Addresses...)
	return &config
}

// Verify will return an error when this config has problem.
func (c *Config) Verify() error {
	if c == nil {
		return fmt.Errorf("配置不存在")
	}
	if err := c.RPC.verify(); err != nil {
		return err
	}
	if err := c.Elasticsearch.verify(); err != nil {
		return err
	}
	if err := c.Migration.verify(); err != nil {
		return err
	}
	// 空前缀会让 Finalize 清空整个缓存
	if c.Cache.Prefix == "" {
		return errors.New("缓存前缀不能为空")
	}
	if _, err := os.Stat(c.Log.OutPutFolder); err != nil {
		return fmt.Errorf(`日志输出路径 "%s" 不存在`, c.Log.OutPutFolder)
	}
	if p := c.Migration.HistoryPath; p != "" {
		if _, err := os.Stat(filepath.Dir(p)); err != nil {
			return fmt.Errorf(`迁移记录目录 "%s" 不存在`, filepath.Dir(p))
		}
	}
	return nil
}

// NewConfigWithBytes 解析 YAML，其中的 ${VAR} 会先用环境变量展开
func NewConfigWithBytes(b []byte) (*Config, error) {
	config := NewConfig()
	// 显式给出的地址列表覆盖默认值
	config.Elasticsearch.Addresses = nil
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), config); err != nil {
		return nil, err
	}
	if len(config.Elasticsearch.Addresses) == 0 {
		config.Elasticsearch.Addresses = append([]string(nil), defaultConfig.Elasticsearch.Addresses...)
	}
	return config, nil
}

// NewConfigWithFile 读取配置文件，同目录下的 .env 会先加载到环境变量（不覆盖已有值）
func NewConfigWithFile(file string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(file), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("can`t load env file: %s: %w", envFile, err)
		}
	}
	b, err := os.ReadFile(file)
	if err != nil {
		diagInfo := DiagnoseFilePermission(file).FormatError()
		if diagInfo != "" {
			return nil, fmt.Errorf("can`t open file: %s%s", file, diagInfo)
		}
		return nil, fmt.Errorf("can`t open file: %s", file)
	}
	config, err := NewConfigWithBytes(b)
	if err != nil {
		return nil, err
	}
	config.File = file
	return config, nil
}

// Marshal 写回配置文件，用于生成默认配置
func (c *Config) Marshal() error {
	if c.File == "" {
		return errors.New("config path not set")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.File, b, 0644)
}

// isInContainer 判断是否运行在容器中
func isInContainer() bool {
	if os.Getenv("IS_DOCKER") != "" {
		return true
	}
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
