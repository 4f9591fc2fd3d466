// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"

	"itemstore/pkg/binder"
	"itemstore/pkg/channel/cache"
	"itemstore/pkg/channel/disk"
	"itemstore/pkg/channel/memory"
	"itemstore/pkg/channel/s3"
	"itemstore/pkg/cluster"
	"itemstore/pkg/config"
	"itemstore/pkg/logging"
	"itemstore/pkg/meta"
	"itemstore/pkg/objectpath"
	"itemstore/pkg/registry"
	"itemstore/pkg/transfer"
	"itemstore/pkg/types"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Logger     *slog.Logger
	Membership cluster.Membership
	Binder     *binder.Binder
	Transfer   *transfer.Transfer

	// 元数据层 (节点注册表 + 传输台账)
	DB         *meta.DB
	Repository *meta.Repository

	// 可选的 Redis 探测缓存，nil 表示未启用
	Redis *redis.Client
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	a := &App{}

	// 1. 日志
	logger, err := logging.New(logging.Config{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	})
	if err != nil {
		return nil, err
	}
	a.Logger = logger

	// 2. 元数据库
	a.DB, err = meta.NewDB(ctx, meta.Config{
		Driver:   viper.GetString("database.driver"),
		DSN:      viper.GetString("database.dsn"),
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		Debug:    viper.GetBool("database.debug"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init metadata db: %w", err)
	}
	a.Repository = meta.NewRepository(a.DB)

	// 3. Redis (可选)
	if url := viper.GetString("redis.url"); url != "" {
		a.Redis, err = cache.NewClient(cache.Config{RedisURL: url, TTL: viper.GetDuration("redis.ttl")})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	// 4. 集群成员
	a.Membership, err = a.initMembership(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 5. 发现与传输
	order, err := cluster.ParseOrder(viper.GetString("discovery.order"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Binder = binder.New(a.Membership, binder.WithOrder(order), binder.WithLogger(logger))
	a.Transfer = transfer.New(
		transfer.WithLogger(logger),
		transfer.WithRecorder(meta.NewLedger(a.Repository)),
		transfer.WithDefaultExcludes(viper.GetBool("transfer.default_excludes")),
	)

	return a, nil
}

func (a *App) initMembership(ctx context.Context) (cluster.Membership, error) {
	cc, err := config.Coordinator()
	if err != nil {
		return nil, err
	}
	coordCh, err := a.initChannel(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to init coordinator: %w", err)
	}
	coordinator := cluster.Node{Name: cc.Name, Channel: coordCh}

	switch viper.GetString("cluster.registry") {
	case "", "static":
		nodes, err := config.Nodes()
		if err != nil {
			return nil, err
		}
		members := make([]cluster.Node, 0, len(nodes))
		for _, nc := range nodes {
			ch, err := a.initChannel(ctx, nc)
			if err != nil {
				return nil, fmt.Errorf("failed to init node %s: %w", nc.Name, err)
			}
			members = append(members, cluster.Node{Name: nc.Name, Channel: ch})
		}
		return cluster.NewStatic(coordinator, members...), nil

	case "database":
		return registry.New(a.Repository, a.channelFromModel, coordinator, a.Logger), nil

	default:
		return nil, fmt.Errorf("unsupported cluster registry: %s", viper.GetString("cluster.registry"))
	}
}

// channelFromModel 是注册表的通道工厂
func (a *App) channelFromModel(ctx context.Context, n meta.NodeModel) (cluster.Channel, error) {
	opts, err := n.DecodeOptions()
	if err != nil {
		return nil, err
	}
	return a.initChannel(ctx, config.NodeConfig{
		Name:     n.Name,
		Type:     n.Kind,
		Root:     n.Root,
		Bucket:   opts.Bucket,
		Endpoint: opts.Endpoint,
		Region:   opts.Region,
	})
}

// initChannel 根据节点类型打开通道，启用 Redis 时套上探测缓存
func (a *App) initChannel(ctx context.Context, nc config.NodeConfig) (cluster.Channel, error) {
	var (
		ch  cluster.Channel
		err error
	)
	switch nc.Type {
	case "", "disk":
		if nc.Root == "" {
			return nil, fmt.Errorf("disk node %s: root is required", nc.Name)
		}
		ch, err = disk.NewChannel(nc.Name, nc.Root)
	case "s3":
		ch, err = s3.NewChannel(ctx, s3.Config{
			Name:            nc.Name,
			Endpoint:        nc.Endpoint,
			Region:          nc.Region,
			Bucket:          nc.Bucket,
			Prefix:          nc.Root,
			AccessKeyID:     nc.AccessKey,
			SecretAccessKey: nc.SecretKey,
		})
	case "memory":
		ch = memory.New(nc.Name, nc.Root)
	default:
		return nil, fmt.Errorf("unsupported node type: %s", nc.Type)
	}
	if err != nil {
		return nil, err
	}

	if a.Redis != nil {
		ch = cache.NewChannel(ch, a.Redis, viper.GetDuration("redis.ttl"), a.Logger)
	}
	return ch, nil
}

// Node 按名字找在线节点 (用于 --node 绑定)
func (a *App) Node(ctx context.Context, name string) (cluster.Channel, error) {
	nodes, err := cluster.Candidates(ctx, a.Membership, cluster.OrderMembership)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Name == name {
			return n.Channel, nil
		}
	}
	return nil, fmt.Errorf("node %q is not an online cluster member", name)
}

// Handle 创建指向条目子路径的句柄
func (a *App) Handle(item types.Item, bound cluster.Channel, segments ...string) *objectpath.Handle {
	return objectpath.New(a.Binder, a.Transfer, item, bound, segments...).WithLogger(a.Logger)
}

// Close 释放外部连接
func (a *App) Close() error {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
