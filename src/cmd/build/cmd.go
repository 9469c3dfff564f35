// build 是仓库的构建工具：go run ./src/cmd/build <command>
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/alecthomas/kingpin"
	log "github.com/sirupsen/logrus"
)

// 全局变量，用于存储命令行参数
var (
	customVersion string
	outputPath    string
)

func main() {
	os.Exit(RunCmd(os.Args[1:]))
}

func RunCmd(args []string) int {
	app := kingpin.New("Build tool", "docstore-migrate Build tool.")

	// dev 命令支持 --version 参数
	devCmd := app.Command("dev", "Build for development.")
	devCmd.Flag("version", "自定义版本号").StringVar(&customVersion)
	devCmd.Flag("output", "输出路径").StringVar(&outputPath)
	devCmd.Action(devBuild)

	releaseCmd := app.Command("release", "Build for release.")
	releaseCmd.Flag("output", "输出路径").StringVar(&outputPath)
	releaseCmd.Action(releaseBuild)

	app.Command("test", "Run tests.").Action(goTest)
	app.Command("generate", "go generate ./...").Action(goGenerate)
	app.Command("clean", "清理构建产物").Action(cleanBuild)

	if _, err := app.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func devBuild(c *kingpin.ParseContext) error {
	if customVersion != "" {
		os.Setenv("APP_VERSION", customVersion)
	}
	return BuildGoBinary(true, outputPath)
}

func releaseBuild(c *kingpin.ParseContext) error {
	return BuildGoBinary(false, outputPath)
}

func goTest(c *kingpin.ParseContext) error {
	return execCommand([]string{
		"go", "test",
		"-race",
		"--cover",
		"-coverprofile=coverage.txt",
		"./src/...",
	})
}

func goGenerate(c *kingpin.ParseContext) error {
	return execCommand([]string{"go", "generate", "./..."})
}

// cleanBuild 清理构建产物（跨平台）
func cleanBuild(c *kingpin.ParseContext) error {
	for _, path := range []string{"bin", "coverage.txt"} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("删除 %s 失败: %w", path, err)
		}
		fmt.Printf("已删除: %s\n", filepath.Clean(path))
	}
	fmt.Println("清理完成")
	return nil
}

func execCommand(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Print(cmd.String())
	return cmd.Run()
}
