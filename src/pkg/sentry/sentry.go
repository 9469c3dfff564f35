// Package sentry 提供 Sentry 错误监控的封装
// 用于收集迁移失败与崩溃信息，同时过滤连接串中的凭据
package sentry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	// initialized 标记 Sentry 是否已初始化
	initialized bool
	// initMu 保护初始化状态
	initMu sync.RWMutex
)

// 敏感关键字列表，用于过滤敏感数据
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "api_key", "apikey", "credential",
}

// URL 中的 user:password@ 部分（elasticsearch / redis 连接串）
var userinfoPattern = regexp.MustCompile(`(\w+://)[^/@\s:]+:[^/@\s]+@`)

var keywordPatterns = func() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(sensitiveKeywords))
	for _, keyword := range sensitiveKeywords {
		patterns = append(patterns, regexp.MustCompile(`(?i)(`+regexp.QuoteMeta(keyword)+`)\s*[=:]\s*[^\s,}"\]]+`))
	}
	return patterns
}()

// Init 初始化 Sentry SDK
// dsn 为 Sentry DSN，留空则禁用
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend:       beforeSendHook,
		SampleRate:       1.0,
	})
	if err != nil {
		return err
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance_id", InstanceID())
	})

	initMu.Lock()
	initialized = true
	initMu.Unlock()
	return nil
}

// IsInitialized 返回 Sentry 是否已初始化
func IsInitialized() bool {
	initMu.RLock()
	defer initMu.RUnlock()
	return initialized
}

// Flush 刷新所有待发送事件（程序退出前调用）
func Flush(timeout time.Duration) {
	if !IsInitialized() {
		return
	}
	sentry.Flush(timeout)
}

// Recover 用于 main 或 goroutine 的 panic 恢复，需 defer 调用
// 注意：必须先调用 recover()，再检查 Sentry 状态，否则 panic 不会被捕获
func Recover() {
	err := recover()
	if err == nil {
		return
	}
	if IsInitialized() {
		if hub := sentry.CurrentHub(); hub != nil {
			hub.Recover(err)
		}
	}
}

// CaptureException 上报错误，tags 会附加到事件上
func CaptureException(err error, tags map[string]string) {
	if !IsInitialized() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// PanicError 将 recover() 得到的值转换为 error 并上报
func PanicError(v any, tags map[string]string) error {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}
	err = fmt.Errorf("panic: %w", err)
	CaptureException(err, tags)
	return err
}

// Go 启动一个新的 goroutine 并自动添加 panic 恢复
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// beforeSendHook 在发送事件前清理敏感数据
func beforeSendHook(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Message != "" {
		event.Message = sanitizeString(event.Message)
	}
	for i := range event.Exception {
		event.Exception[i].Value = sanitizeString(event.Exception[i].Value)
	}
	for key, value := range event.Tags {
		if isSensitiveKey(key) {
			event.Tags[key] = "[REDACTED]"
		} else {
			event.Tags[key] = sanitizeString(value)
		}
	}
	return event
}

// sanitizeString 清理字符串中的敏感数据
func sanitizeString(s string) string {
	result := userinfoPattern.ReplaceAllString(s, "$1[REDACTED]@")
	for _, pattern := range keywordPatterns {
		result = pattern.ReplaceAllString(result, "$1=[REDACTED]")
	}
	return result
}

// isSensitiveKey 检查键名是否为敏感键
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
