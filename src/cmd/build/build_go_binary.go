package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"text/template"
	"time"

	log "github.com/sirupsen/logrus"
)

// BuildFlags 包含构建所需的参数
type BuildFlags struct {
	Tags         string
	GcFlags      string
	LdFlags      string
	DebugLdFlags string // -s -w（release 模式）或空（dev 模式）
}

const (
	// constsPath 是注入版本信息的包路径
	constsPath = "github.com/bililive-go/docstore/src/consts"
	mainPath   = "./src/cmd/docstore-migrate"
)

var ldFlagsTmpl = template.Must(template.New("ldFlags").Parse(
	"-X {{.ConstsPath}}.BuildTime={{.Now}} " +
		"-X {{.ConstsPath}}.AppVersion={{.AppVersion}} " +
		"-X {{.ConstsPath}}.GitHash={{.GitHash}}" +
		"{{if .SentryDSN}} -X main.SentryDSN={{.SentryDSN}}{{end}}"))

// GetBuildFlags 返回构建参数
func GetBuildFlags(isDev bool, appVersion, gitHash string, now time.Time) BuildFlags {
	var buf bytes.Buffer
	_ = ldFlagsTmpl.Execute(&buf, map[string]string{
		"ConstsPath": constsPath,
		"Now":        fmt.Sprintf("%d", now.Unix()),
		"AppVersion": appVersion,
		"GitHash":    gitHash,
		"SentryDSN":  os.Getenv("SENTRY_DSN"),
	})

	if isDev {
		return BuildFlags{
			Tags:    "dev",
			GcFlags: "all=-N -l", // 禁用优化以便调试
			LdFlags: strings.TrimSpace(buf.String()),
		}
	}
	return BuildFlags{
		Tags:         "release",
		LdFlags:      strings.TrimSpace(buf.String()),
		DebugLdFlags: "-s -w",
	}
}

// BuildGoBinary 构建二进制文件，outputPath 为空时输出到 bin/docstore-migrate-{平台}-{架构}
func BuildGoBinary(isDev bool, outputPath string) error {
	goHostOS := os.Getenv("PLATFORM")
	if goHostOS == "" {
		goHostOS = runtime.GOOS
	}
	goHostArch := os.Getenv("ARCH")
	if goHostArch == "" {
		goHostArch = runtime.GOARCH
	}
	if outputPath == "" {
		outputPath = "bin/" + generateBinaryName(goHostOS, goHostArch)
	}

	// 版本号优先级：环境变量 APP_VERSION > git tag
	appVersion := os.Getenv("APP_VERSION")
	if appVersion == "" {
		appVersion = getGitTagString()
	}
	flags := GetBuildFlags(isDev, appVersion, getGitHash(), time.Now())

	fmt.Printf("building docstore-migrate (Platform: %s, Arch: %s, GoVersion: %s, Tags: %s)\n",
		goHostOS, goHostArch, runtime.Version(), flags.Tags)

	ldflags := flags.LdFlags
	if flags.DebugLdFlags != "" {
		ldflags = flags.DebugLdFlags + " " + ldflags
	}
	if err := os.MkdirAll("bin", 0755); err != nil {
		return err
	}

	cmd := exec.Command(
		"go", "build",
		"-tags", flags.Tags,
		`-gcflags=`+flags.GcFlags,
		"-o", outputPath,
		"-ldflags="+ldflags,
		mainPath,
	)
	// modernc.org/sqlite 为纯 Go 实现，无需 cgo
	cmd.Env = append(os.Environ(), "GOOS="+goHostOS, "GOARCH="+goHostArch, "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Print(cmd.String())
	return cmd.Run()
}

func generateBinaryName(goHostOS string, goHostArch string) string {
	binaryName := "docstore-migrate-" + goHostOS + "-" + goHostArch
	if goHostOS == "windows" {
		binaryName += ".exe"
	}
	return binaryName
}

func getGitHash() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func getGitTagString() string {
	out, err := exec.Command("git", "describe", "--tags", "--always").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
