package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// defaultPrompt targets the en→zh paper-translation case and instructs the
// model to leave formula placeholders of the form {v*} untouched.
const defaultPrompt = "你是一个专业的英译中翻译引擎。请将以下英文文本翻译成中文，" +
	"保持公式标记 {v*} 不变。直接输出翻译结果，不要包含其他文本。\n\n" +
	"原文：${text}\n\n译文："

// OpenAI translates through the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	prompt string
}

// NewOpenAI builds the provider. Recognized params: api_key (required),
// base_url, model, prompt (template with a ${text} placeholder).
func NewOpenAI(params map[string]any) (*OpenAI, error) {
	apiKey := stringParam(params, "api_key", "")
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api_key not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := stringParam(params, "base_url", ""); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  stringParam(params, "model", defaultOpenAIModel),
		prompt: stringParam(params, "prompt", defaultPrompt),
	}, nil
}

// Translate implements Translator.
func (o *OpenAI) Translate(ctx context.Context, text string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.ReplaceAll(o.prompt, "${text}", text),
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
				return "", NewRetryable("openai", "api error", err)
			}
			return "", NewFatal("openai", "api error", err)
		}
		return "", NewRetryable("openai", "request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", NewFatal("openai", "empty completion", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
