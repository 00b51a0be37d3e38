package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// jsonBlockPattern ```json { ... } ``` 代码块
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")
	// trailingCommaPattern } 或 ] 前多余的逗号
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON 从模型回复中提取第一个合法的 JSON 对象
// 依次尝试 markdown 代码块、正文中第一个括号平衡且可解析的对象
// 都失败时返回空串
func ExtractJSON(content string) string {
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		if cleaned := cleanJSON(m[1]); json.Valid([]byte(cleaned)) {
			return cleaned
		}
	}
	for start := strings.IndexByte(content, '{'); start >= 0; {
		if end := matchBrace(content, start); end > start {
			if cleaned := cleanJSON(content[start : end+1]); json.Valid([]byte(cleaned)) {
				return cleaned
			}
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchBrace 返回与 start 处 '{' 配对的 '}' 下标，忽略字符串内的括号
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// cleanJSON 去掉模型常见的 // 注释与尾逗号
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaPattern.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment 去掉字符串外的 // 注释
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

// ParseOr 解析模型回复为 T，提取失败或校验不通过时使用 fallback 的结果
// 第二个返回值表示是否成功解析
func ParseOr[T any](text string, fallback func() T, validate ...func(*T) error) (T, bool) {
	raw := ExtractJSON(text)
	if raw == "" {
		return fallback(), false
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback(), false
	}
	for _, v := range validate {
		if err := v(&out); err != nil {
			return fallback(), false
		}
	}
	return out, true
}
