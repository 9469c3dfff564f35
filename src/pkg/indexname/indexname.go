// Package indexname 负责版本化索引名的格式化与解析
//
// 搜索引擎中的索引名统一为 {prefix}{logicalName}-{migrationId}，
// 其中 migrationId 为创建该代索引的迁移标识（十进制整数）。
package indexname

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidLogicalName 逻辑索引名不合法
var ErrInvalidLogicalName = errors.New("invalid logical index name")

// ErrInvalidMigrationName 迁移名中不包含可解析的时间戳后缀
var ErrInvalidMigrationName = errors.New("invalid migration name")

// 迁移名后缀形如 202009082258（yyyyMMddHHmm）
var migrationSuffix = regexp.MustCompile(`(\d{12})$`)

// 以 -<digits> 结尾的逻辑名会让解析产生歧义
var trailingGeneration = regexp.MustCompile(`-\d+$`)

// Format 生成版本化索引名
func Format(prefix, logicalName string, id int64) string {
	return prefix + logicalName + "-" + strconv.FormatInt(id, 10)
}

// TryParse 解析版本化索引名，按最后一个 '-' 切分。
// 前缀不匹配、后缀不是规范的十进制整数（无符号、无前导零）或逻辑名为空时返回 ok=false。
func TryParse(prefix, indexName string) (logicalName string, id int64, ok bool) {
	if !strings.HasPrefix(indexName, prefix) {
		return "", 0, false
	}
	rest := indexName[len(prefix):]

	i := strings.LastIndexByte(rest, '-')
	if i <= 0 || i == len(rest)-1 {
		return "", 0, false
	}
	suffix := rest[i+1:]
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return "", 0, false
		}
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return "", 0, false
	}
	// 只接受 Format 生成的规范形式，"-03" 与 "-3" 不能同时被视为同一代
	if strconv.FormatInt(id, 10) != suffix {
		return "", 0, false
	}
	return rest[:i], id, true
}

// Pattern 返回匹配某个逻辑索引所有代的通配模式；logicalName 为空时匹配前缀下全部索引
func Pattern(prefix, logicalName string) string {
	if logicalName == "" {
		return prefix + "*"
	}
	return prefix + logicalName + "-*"
}

// ValidLogicalName 校验逻辑索引名
func ValidLogicalName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLogicalName)
	}
	if trailingGeneration.MatchString(name) {
		return fmt.Errorf("%w: %q ends with -<digits>", ErrInvalidLogicalName, name)
	}
	return nil
}

// ParseMigrationID 从迁移声明名（如 Migration202009082258）中解析迁移标识
func ParseMigrationID(name string) (int64, error) {
	m := migrationSuffix.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: %q has no yyyyMMddHHmm suffix", ErrInvalidMigrationName, name)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMigrationName, err)
	}
	return id, nil
}
