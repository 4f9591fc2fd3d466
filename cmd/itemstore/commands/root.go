package commands

import (
	"context"
	"fmt"
	"os"

	"itemstore/pkg/app"
	"itemstore/pkg/cluster"
	"itemstore/pkg/config"
	"itemstore/pkg/objectpath"
	"itemstore/pkg/types"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	itemFlag string
	nodeFlag string

	// 全局应用实例，供子命令使用
	App *app.App
)

var rootCmd = &cobra.Command{
	Use:   "itemstore",
	Short: "Item-scoped object store across build cluster nodes",
	Long: `itemstore resolves item-scoped cache paths to the cluster node that holds them
and copies directory trees between that node and any other node.`,
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 测试可以预先注入 App
		if App != nil {
			return nil
		}
		var err error
		App, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize itemstore: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute(ctx context.Context) error {
	defer func() {
		if App != nil {
			App.Close()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.itemstore/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&itemFlag, "item", "", "item as <container>/<name> (default: derived from the working directory)")
	rootCmd.PersistentFlags().StringVar(&nodeFlag, "node", "", "node the current workspace lives on (skips discovery)")
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}

// currentItem 解析 --item，缺省时用工作目录的最后两级
func currentItem() (types.Item, error) {
	if itemFlag != "" {
		return types.ParseItem(itemFlag)
	}
	wd, err := os.Getwd()
	if err != nil {
		return types.Item{}, err
	}
	return types.ItemFromRootDir(wd)
}

// boundChannel 返回 --node 指定的节点，未指定时为 nil (走发现)
func boundChannel(ctx context.Context) (cluster.Channel, error) {
	if nodeFlag == "" {
		return nil, nil
	}
	return App.Node(ctx, nodeFlag)
}

// handleFor 根据全局参数和可选的子路径参数构建句柄
func handleFor(ctx context.Context, args []string) (*objectpath.Handle, error) {
	if App == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	item, err := currentItem()
	if err != nil {
		return nil, err
	}
	bound, err := boundChannel(ctx)
	if err != nil {
		return nil, err
	}

	var segs []string
	if len(args) > 0 {
		sub := types.ParseSubPath(args[0])
		if err := sub.Validate(); err != nil {
			return nil, err
		}
		segs = sub.Segments()
	}
	return App.Handle(item, bound, segs...), nil
}
