package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NodeConfig 描述一个节点 (cluster.coordinator / cluster.nodes[i])
type NodeConfig struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"` // disk | s3 | memory
	Root      string `mapstructure:"root"` // disk: home 目录; s3: Key 前缀
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .itemstore
		viper.AddConfigPath(".itemstore")
		// 3. 用户主目录下的 .itemstore
		viper.AddConfigPath(filepath.Join(home, ".itemstore"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (ITEMSTORE_REDIS_URL 等)
	viper.SetEnvPrefix("ITEMSTORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，还有默认值和环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	home, _ := os.UserHomeDir()

	// 集群
	viper.SetDefault("cluster.registry", "static")
	viper.SetDefault("cluster.coordinator.name", "coordinator")
	viper.SetDefault("cluster.coordinator.type", "disk")
	viper.SetDefault("cluster.coordinator.root", filepath.Join(home, ".itemstore", "home"))

	// 发现与传输
	viper.SetDefault("discovery.order", "membership")
	viper.SetDefault("transfer.default_excludes", true)

	// Redis 探测缓存 (url 为空表示不启用)
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.ttl", 10*time.Minute)

	// 数据库默认值
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(home, ".itemstore", "itemstore.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// Coordinator 读取 coordinator 节点配置
func Coordinator() (NodeConfig, error) {
	var n NodeConfig
	if err := viper.UnmarshalKey("cluster.coordinator", &n); err != nil {
		return n, fmt.Errorf("invalid cluster.coordinator: %w", err)
	}
	return n, nil
}

// Nodes 读取静态节点列表
func Nodes() ([]NodeConfig, error) {
	var nodes []NodeConfig
	if err := viper.UnmarshalKey("cluster.nodes", &nodes); err != nil {
		return nil, fmt.Errorf("invalid cluster.nodes: %w", err)
	}
	for i, n := range nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("cluster.nodes[%d]: name is required", i)
		}
	}
	return nodes, nil
}
