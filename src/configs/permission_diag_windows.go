//go:build windows

package configs

// PermissionDiagnostics Windows 上不做 Unix 权限检查
type PermissionDiagnostics struct {
	Suggestions []string
}

func DiagnoseFilePermission(string) *PermissionDiagnostics {
	return &PermissionDiagnostics{}
}

func (d *PermissionDiagnostics) FormatError() string {
	return ""
}
