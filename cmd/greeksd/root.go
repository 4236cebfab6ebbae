package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
)

// rootOptions 全部子命令共享的参数与加载后的配置。
type rootOptions struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "greeksd",
		Short:         "option greeks and P&L attribution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the TOML config file; defaults apply when empty")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config; ignored when missing")

	root.AddCommand(newServeCmd(opts), newGreeksCmd(opts), newExplainCmd(opts))
	return root
}

// load 先加载 .env（APP_ 前缀变量可覆盖配置项），再读取配置文件并初始化全局日志。
func (o *rootOptions) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if o.configPath == "" {
		o.cfg = config.Default()
	} else {
		o.cfg = &config.Config{}
		if err := config.Load(o.configPath, o.cfg); err != nil {
			return err
		}
	}

	logging.InitLogger(o.cfg.Log.Logging(o.cfg.Server.Name, "greeksd"))
	return nil
}
