package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"theblob/pkg/config"
	"theblob/pkg/domain"
)

// Agent talks to an OpenAI-compatible local endpoint (Ollama) for summaries,
// answers, embeddings and image analysis
type Agent struct {
	client *openai.Client
	config config.LLMConfig
}

// NewAgent creates an agent against the configured endpoint
func NewAgent(cfg config.LLMConfig) *Agent {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Agent{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

// Summary generates a brief summary of stored content
func (a *Agent) Summary(ctx context.Context, content string, contentType domain.ContentType) (string, error) {
	prompt := fmt.Sprintf("Please provide a brief summary of this %s: %s", contentType, content)

	return a.chat(ctx, a.config.ChatModel, "", prompt)
}

// Answer generates an answer to a question from similarity-matched blobs.
// The matches are the retrieval context; without any the model is not called.
func (a *Agent) Answer(ctx context.Context, question string, matches []domain.SimilarBlob) (string, error) {
	if len(matches) == 0 {
		return "", fmt.Errorf("no matches to answer from")
	}

	var sb strings.Builder
	sb.WriteString("Context from database:\n")
	for _, m := range matches {
		prefix := "Content:"
		if m.ContentType == domain.ContentPhoto {
			prefix = "Image Analysis:"
		}
		sb.WriteString(fmt.Sprintf("%s (%.2f relevance)\n%s\n", prefix, m.Similarity, m.Content))
		if m.Summary != "" {
			sb.WriteString(fmt.Sprintf("Summary: %s\n", m.Summary))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Question: %s\n", question))
	sb.WriteString("Please provide a relevant answer based on the context above.")

	return a.chat(ctx, a.config.ChatModel, "", sb.String())
}

// Embedding generates an embedding vector for text. Empty text yields nil
// without calling the model.
func (a *Agent) Embedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(a.config.EmbeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}
	return resp.Data[0].Embedding, nil
}

// DescribeImage analyzes an image with the vision model, returning a textual
// description suitable for storage and embedding
func (a *Agent) DescribeImage(ctx context.Context, image []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	prompt := "Please analyze this image in detail. Provide:\n" +
		"1. A detailed description of what you see\n" +
		"2. Any text that appears in the image\n" +
		"3. Notable objects, colors, and patterns\n" +
		"4. The overall context or setting"

	req := openai.ChatCompletionRequest{
		Model: a.config.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + encoded,
						},
					},
				},
			},
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// DeepThink runs the reasoning model over content plus related blobs and
// formats the thinking trace separately from the final analysis
func (a *Agent) DeepThink(ctx context.Context, content string, related []domain.SimilarBlob) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Content to analyze:\n%s\n\n", content))

	if len(related) > 0 {
		sb.WriteString("Related information found:\n")
		for _, m := range related {
			if m.Summary != "" {
				sb.WriteString(fmt.Sprintf("- %s\n", m.Summary))
				continue
			}
			preview := m.Content
			if len(preview) > 200 {
				preview = preview[:200] + "..."
			}
			sb.WriteString(fmt.Sprintf("- %s\n", preview))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Please provide a deep analysis considering:\n" +
		"1. Key insights from the content to analyze\n" +
		"2. Connections with related information found\n" +
		"3. Potential implications or applications\n" +
		"4. Critical thinking points")

	raw, err := a.chat(ctx, a.config.ThinkingModel, "", sb.String())
	if err != nil {
		return "", err
	}
	return formatThinking(raw), nil
}

// chat sends one chat completion request and returns the first choice
func (a *Agent) chat(ctx context.Context, model, system, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(a.config.Temperature),
		MaxTokens:   a.config.MaxTokens,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// formatThinking splits a reasoning model's <think> trace from the final
// answer. Responses without a trace pass through unchanged.
func formatThinking(response string) string {
	start := strings.Index(response, "<think>")
	end := strings.Index(response, "</think>")
	if start == -1 || end == -1 || end < start {
		return response
	}

	thoughts := strings.TrimSpace(response[start+len("<think>") : end])
	answer := strings.TrimSpace(response[end+len("</think>"):])

	return "Thinking Process:\n" +
		"-----------------\n" +
		thoughts + "\n\n" +
		"Final Analysis:\n" +
		"-----------------\n" +
		answer
}
