package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download"`
	Nexus    NexusConfig    `mapstructure:"nexus"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

type DownloadConfig struct {
	Dest            string `mapstructure:"dest"`              // 目标目录
	BatchSize       int    `mapstructure:"batch_size"`        // 每一批同时下载的记录数
	InterBatchDelay int    `mapstructure:"inter_batch_delay"` // 批次之间的最小间隔 (秒)
	RetryLimit      int    `mapstructure:"retry_limit"`       // 单条记录的瞬态错误重试上限
	HashAlgorithm   string `mapstructure:"hash_algorithm"`    // xxh64 / sha256 / size / skip
	Fetcher         string `mapstructure:"fetcher"`           // http / delegate
	DelegateTimeout int    `mapstructure:"delegate_timeout"`  // delegate 模式单条记录的等待上限 (秒)
}

type NexusConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Game    string `mapstructure:"game"`    // 游戏域名，如 skyrimspecialedition
	GameID  int    `mapstructure:"game_id"` // Nexus 数字 game_id，生成下载链接时要用
	Session string `mapstructure:"session"` // nexusmods_session cookie 值，建议用 MODLIST_NEXUS_SESSION 注入
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug or release
}

type BackupConfig struct {
	Endpoint  string `mapstructure:"endpoint"` // S3 兼容端点，留空则禁用备份
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
}

var AppConfig *Config

func LoadConfig(configPath string) error {
	v := viper.New()

	// 默认值
	v.SetDefault("download.dest", "downloads")
	v.SetDefault("download.batch_size", 5)
	v.SetDefault("download.inter_batch_delay", 2)
	v.SetDefault("download.retry_limit", 3)
	v.SetDefault("download.hash_algorithm", "xxh64")
	v.SetDefault("download.fetcher", "http")
	v.SetDefault("download.delegate_timeout", 600)
	v.SetDefault("nexus.base_url", "https://www.nexusmods.com")
	v.SetDefault("nexus.game", "")
	v.SetDefault("nexus.game_id", 1704)
	v.SetDefault("nexus.session", "")
	v.SetDefault("database.path", "data/modlist.db")
	v.SetDefault("server.port", 8307)
	v.SetDefault("server.mode", "release")
	// 空默认也要注册：AutomaticEnv 只认已注册的键，
	// 否则 MODLIST_NEXUS_SESSION 这类纯环境变量注入会被 Unmarshal 漏掉
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.access_key", "")
	v.SetDefault("backup.secret_key", "")
	v.SetDefault("backup.bucket", "")

	// 配置文件路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	// 环境变量替换 (使用 MODLIST_ 前缀)
	// 比如 MODLIST_DOWNLOAD_BATCH_SIZE=10, MODLIST_NEXUS_SESSION=...
	v.SetEnvPrefix("MODLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	AppConfig = &Config{}
	if err := v.Unmarshal(AppConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}
