package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/configs"
	"github.com/bililive-go/docstore/src/consts"
	"github.com/bililive-go/docstore/src/migrations"
	"github.com/bililive-go/docstore/src/pkg/migration"
	"github.com/bililive-go/docstore/src/servers"
)

type cli struct {
	out        io.Writer
	configFile string
	debug      bool
	asJSON     bool
	initPath   string

	// newApp 便于测试替换
	newApp func(*configs.Config) (*app, error)
}

func runCmd(args []string, out io.Writer) int {
	return newCLI(out, newApp).execute(args)
}

func newCLI(out io.Writer, factory func(*configs.Config) (*app, error)) *cli {
	return &cli{out: out, newApp: factory}
}

func (c *cli) execute(args []string) int {
	application := kingpin.New(consts.AppName, "Search index migration tool.")
	application.Writer(c.out)
	application.Version(consts.AppVersion)
	application.Flag("config", "配置文件路径").Short('c').StringVar(&c.configFile)
	application.Flag("debug", "输出调试日志").BoolVar(&c.debug)

	application.Command("run", "应用所有未执行的迁移，完成后写入保持关闭").Action(c.withApp(c.run))
	application.Command("finalize", "删除被取代的旧代索引、清理缓存并恢复写入").Action(c.withApp(c.finalize))
	statusCmd := application.Command("status", "显示水位、迁移与索引代状态")
	statusCmd.Flag("json", "以 JSON 输出").BoolVar(&c.asJSON)
	statusCmd.Action(c.withApp(c.status))
	application.Command("list", "列出已登记的迁移").Action(c.list)
	application.Command("serve", "启动管理接口").Action(c.withApp(c.serve))
	initCmd := application.Command("init-config", "生成默认配置文件")
	initCmd.Arg("path", "输出路径").Default("config.yml").StringVar(&c.initPath)
	initCmd.Action(c.initConfig)

	if _, err := application.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: error: %v\n", consts.AppName, err)
		return 1
	}
	return 0
}

// withApp 加载配置、组装组件，并在收到 SIGINT/SIGTERM 时取消 ctx
func (c *cli) withApp(fn func(ctx context.Context, a *app) error) kingpin.Action {
	return func(*kingpin.ParseContext) error {
		config, err := loadConfig(c.configFile, c.debug)
		if err != nil {
			return err
		}
		a, err := c.newApp(config)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logrus.WithError(err).Warn("failed to close resources")
			}
		}()
		a.logger.Infof("%s Version: %s", consts.AppName, consts.AppVersion)
		a.logger.Debugf("%+v", consts.GetAppInfo())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := a.ping(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	}
}

func (c *cli) run(ctx context.Context, a *app) error {
	result, err := a.manager.Run(ctx)
	if result != nil {
		c.printRun(result)
	}
	if err != nil {
		return err
	}
	if result.Failed != nil {
		return fmt.Errorf("migration %s failed: %w", result.Failed.Name, result.Failed.Err)
	}
	return nil
}

func (c *cli) printRun(result *migration.RunResult) {
	fmt.Fprintf(c.out, "watermark: %d\n", result.Watermark)
	for _, id := range result.Applied {
		fmt.Fprintf(c.out, "applied:   %d\n", id)
	}
	if f := result.Failed; f != nil {
		fmt.Fprintf(c.out, "failed:    %d %s: %v\n", f.ID, f.Name, f.Err)
		if len(f.RolledBack) > 0 {
			fmt.Fprintf(c.out, "rolled back: %s\n", strings.Join(f.RolledBack, ", "))
		}
		if len(f.RollbackFailed) > 0 {
			fmt.Fprintf(c.out, "rollback failed, delete manually: %s\n", strings.Join(f.RollbackFailed, ", "))
		}
	}
	for _, id := range result.Remaining {
		fmt.Fprintf(c.out, "skipped:   %d\n", id)
	}
	fmt.Fprintln(c.out, "writes remain blocked until finalize")
}

func (c *cli) finalize(ctx context.Context, a *app) error {
	result, err := a.manager.Finalize(ctx)
	if result != nil {
		for _, name := range result.Deleted {
			fmt.Fprintf(c.out, "deleted:  %s\n", name)
		}
		for _, name := range result.Failed {
			fmt.Fprintf(c.out, "failed:   %s\n", name)
		}
		for _, name := range result.Retained {
			fmt.Fprintf(c.out, "retained: %s\n", name)
		}
		fmt.Fprintf(c.out, "cache keys deleted: %d\n", result.CacheKeysDeleted)
	}
	return err
}

func (c *cli) status(ctx context.Context, a *app) error {
	status, err := a.manager.Status(ctx)
	if err != nil {
		return err
	}
	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	printStatus(c.out, status)
	return nil
}

func printStatus(out io.Writer, status *migration.Status) {
	fmt.Fprintf(out, "watermark: %d, pending: %d\n", status.Watermark, status.Pending)
	if st := status.WritesBlocked; st != nil {
		fmt.Fprintf(out, "writes blocked since %s by %s: %s\n", st.Since.Format(time.RFC3339), st.Host, st.Reason)
	} else {
		fmt.Fprintln(out, "writes allowed")
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nID\tNAME\tAPPLIED")
	for _, m := range status.Migrations {
		fmt.Fprintf(tw, "%d\t%s\t%t\n", m.ID, m.Name, m.Applied)
	}
	fmt.Fprintln(tw, "\nINDEX\tLOGICAL\tCURRENT")
	for _, g := range status.Generations {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", g.Index, g.Logical, g.Current)
	}
	tw.Flush()
}

func (c *cli) list(*kingpin.ParseContext) error {
	registry, err := migrations.NewRegistry()
	if err != nil {
		return err
	}
	for _, e := range registry.Entries() {
		fmt.Fprintf(c.out, "%d\t%s\n", e.ID, e.Name)
	}
	return nil
}

func (c *cli) serve(ctx context.Context, a *app) error {
	if !a.config.RPC.Enable {
		return fmt.Errorf("RPC 服务未启用，请在配置文件中设置 rpc.enable")
	}
	var hist servers.HistoryReader
	if a.journal != nil {
		hist = a.journal
	}
	server := servers.NewServer(a.config.RPC, a.manager, a.metrics, hist, a.local, a.config.Cache.Prefix)
	if err := server.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Close(shutdownCtx)
}

func (c *cli) initConfig(*kingpin.ParseContext) error {
	if _, err := os.Stat(c.initPath); err == nil {
		return fmt.Errorf("%s already exists", c.initPath)
	}
	config := configs.NewConfig()
	config.File = c.initPath
	if err := config.Marshal(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "config written to %s\n", c.initPath)
	return nil
}
