package sentry

import (
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"
)

var (
	// cachedInstanceID 当前进程的实例 ID
	cachedInstanceID string
	instanceIDOnce   sync.Once
)

// InstanceID 返回当前进程的匿名实例 ID（32 位十六进制，进程内不变）
// 用于在 Sentry 中区分同一时刻运行迁移的不同机器
func InstanceID() string {
	instanceIDOnce.Do(func() {
		cachedInstanceID = strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	})
	return cachedInstanceID
}
