package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible backends. BaseURL may point
// at any server speaking the same API, e.g. a local whisper.cpp server.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // default: "https://api.openai.com/v1"
	Model    string
	Language string
}

func newOpenAIClient(cfg OpenAIConfig) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return openai.NewClientWithConfig(c)
}

// WhisperRecognizer transcribes through the /audio/transcriptions endpoint
type WhisperRecognizer struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewWhisperRecognizer creates an API recognizer. Model defaults to whisper-1.
func NewWhisperRecognizer(cfg OpenAIConfig) *WhisperRecognizer {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &WhisperRecognizer{client: newOpenAIClient(cfg), cfg: cfg}
}

func (w *WhisperRecognizer) Name() string { return "openai-whisper" }

// Recognize uploads audioPath and returns the transcript text
func (w *WhisperRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: audioPath,
		Language: w.cfg.Language,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

const punctuationPrompt = "You restore punctuation in speech recognition transcripts. " +
	"Insert punctuation marks into the user's text. Do not add, remove, reorder or change " +
	"any other character. Reply with the punctuated text only."

// ChatRestorer punctuates text with a chat completion model
type ChatRestorer struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewChatRestorer creates an API restorer. Model defaults to gpt-4o-mini.
func NewChatRestorer(cfg OpenAIConfig) *ChatRestorer {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &ChatRestorer{client: newOpenAIClient(cfg), cfg: cfg}
}

func (c *ChatRestorer) Name() string { return "openai-chat-punc" }

// Restore punctuates one segment
func (c *ChatRestorer) Restore(ctx context.Context, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: punctuationPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
