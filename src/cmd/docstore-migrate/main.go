package main

import (
	"os"
	"time"

	"github.com/bililive-go/docstore/src/pkg/sentry"
)

// 编译时通过 -ldflags 注入
var (
	SentryDSN string
	SentryEnv = "production"
)

func main() {
	code := func() int {
		// 程序退出时刷新 Sentry 事件队列
		defer sentry.Flush(2 * time.Second)
		defer sentry.Recover()
		return runCmd(os.Args[1:], os.Stdout)
	}()
	os.Exit(code)
}
