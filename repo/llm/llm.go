package llm

import (
	"context"
	"fmt"

	openai3 "github.com/cloudwego/eino-ext/libs/acl/openai"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/hildam/fin-flow-go/entity/conf"
)

// NewChatModel 按配置创建 OpenAI 兼容的 Chat 模型
func NewChatModel(ctx context.Context, m conf.Model) (*openai.ChatModel, error) {
	llm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   m.ModelID,
		BaseURL: m.BaseURL,
		APIKey:  m.APIKey,
		Timeout: m.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("NewChatModel failed, model = %s, err: %w", m.ModelID, err)
	}
	return llm, nil
}

// NewSchemaModel 创建按 JSON Schema 约束输出的模型
// shape 为目标结构体的零值指针，name 为 schema 名称
func NewSchemaModel(ctx context.Context, m conf.Model, name string, shape any) (*openai.ChatModel, error) {
	// 定义返回结构
	schemaRef, err := openapi3gen.NewSchemaRefForValue(shape, nil)
	if err != nil {
		return nil, fmt.Errorf("NewSchemaModel failed, generate schema %s err: %w", name, err)
	}

	llm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   m.ModelID,
		BaseURL: m.BaseURL,
		APIKey:  m.APIKey,
		Timeout: m.Timeout,
		// 结构化响应格式
		ResponseFormat: &openai3.ChatCompletionResponseFormat{
			Type: openai3.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai3.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Strict: false,
				Schema: schemaRef.Value,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("NewSchemaModel failed, model = %s, err: %w", m.ModelID, err)
	}
	return llm, nil
}
