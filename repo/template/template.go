package template

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed prompts/*.md
var embedded embed.FS

// OverrideDir 工作目录下的覆盖目录，存在同名文件时优先使用
var OverrideDir = "prompts"

// GetPromptTemplate 加载并返回一个提示模板
func GetPromptTemplate(ctx context.Context, promptName string) (string, error) {
	file := fmt.Sprintf("%s.md", promptName)

	// 优先读取工作目录下的覆盖文件
	if OverrideDir != "" {
		content, err := os.ReadFile(filepath.Join(OverrideDir, file))
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("GetPromptTemplate failed, read override %s err = %v", file, err)
		}
	}

	content, err := embedded.ReadFile("prompts/" + file)
	if err != nil {
		msg := fmt.Errorf("GetPromptTemplate failed, read template file %s, err: %w", file, err)
		slog.Error(msg.Error())
		return "", msg
	}
	return string(content), nil
}

// Render 渲染系统提示词，user 作为用户输入追加在后面
func Render(ctx context.Context, name string, vars map[string]any, user ...*schema.Message) ([]*schema.Message, error) {
	sysPrompt, err := GetPromptTemplate(ctx, name)
	if err != nil {
		return nil, err
	}

	// 构建Jinja2格式的提示词模板，包含系统消息和用户输入占位符
	promptTemp := prompt.FromMessages(schema.Jinja2,
		schema.SystemMessage(sysPrompt),
		schema.MessagesPlaceholder("user_input", true),
	)
	variables := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		variables[k] = v
	}
	variables["user_input"] = user

	output, err := promptTemp.Format(ctx, variables)
	if err != nil {
		slog.Error("Render failed, format prompt %s err = %v", name, err)
		return nil, err
	}
	return output, nil
}

// RenderPair 分别渲染系统与用户两个模板
func RenderPair(ctx context.Context, systemName, userName string, vars map[string]any) ([]*schema.Message, error) {
	sysPrompt, err := GetPromptTemplate(ctx, systemName)
	if err != nil {
		return nil, err
	}
	userPrompt, err := GetPromptTemplate(ctx, userName)
	if err != nil {
		return nil, err
	}

	promptTemp := prompt.FromMessages(schema.Jinja2,
		schema.SystemMessage(sysPrompt),
		schema.UserMessage(userPrompt),
	)
	output, err := promptTemp.Format(ctx, vars)
	if err != nil {
		slog.Error("RenderPair failed, format prompt %s/%s err = %v", systemName, userName, err)
		return nil, err
	}
	return output, nil
}
