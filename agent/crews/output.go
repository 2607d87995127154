package crews

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveOutputPath 把相对路径放到 dir 下；dir 为空时按原样返回。
func ResolveOutputPath(dir, file string) (string, error) {
	if file == "" {
		return "", fmt.Errorf("empty output file")
	}
	if dir == "" || filepath.IsAbs(file) {
		return filepath.Clean(file), nil
	}
	path := filepath.Join(dir, file)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output file %q escapes output dir %q", file, dir)
	}
	return path, nil
}

// writeOutputFile 写出任务结果：有结构化输出时写缩进 JSON，否则写原始文本。
func writeOutputFile(dir, file string, out *TaskOutput) (string, error) {
	path, err := ResolveOutputPath(dir, file)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	var data []byte
	switch {
	case out.Value != nil:
		data, err = json.MarshalIndent(out.Value, "", "  ")
	case out.JSON != nil:
		data, err = json.MarshalIndent(out.JSON, "", "  ")
	default:
		data = []byte(out.Raw)
	}
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return path, nil
}
