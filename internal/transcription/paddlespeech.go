package transcription

import (
	"context"
	"fmt"
)

// PaddleSpeechConfig configures the PaddleSpeech CLI backends
type PaddleSpeechConfig struct {
	Binary string // default: "paddlespeech"
	Lang   string // asr --lang, e.g. "zh"
	Model  string // --model override
}

// PaddleSpeechRecognizer runs `paddlespeech asr` as a subprocess
type PaddleSpeechRecognizer struct {
	cfg PaddleSpeechConfig
}

// NewPaddleSpeechRecognizer creates a CLI recognizer
func NewPaddleSpeechRecognizer(cfg PaddleSpeechConfig) *PaddleSpeechRecognizer {
	if cfg.Binary == "" {
		cfg.Binary = "paddlespeech"
	}
	return &PaddleSpeechRecognizer{cfg: cfg}
}

func (p *PaddleSpeechRecognizer) Name() string { return "paddlespeech-asr" }

// Recognize transcribes audioPath. A non-zero exit yields a *CommandError
// carrying the tool's stderr.
func (p *PaddleSpeechRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	args := []string{"asr", "--input", audioPath}
	if p.cfg.Lang != "" {
		args = append(args, "--lang", p.cfg.Lang)
	}
	if p.cfg.Model != "" {
		args = append(args, "--model", p.cfg.Model)
	}

	out, err := runCommand(ctx, p.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("asr failed: %w", err)
	}
	return lastLine(out), nil
}

// PaddleSpeechRestorer runs `paddlespeech text --task punc` as a subprocess
type PaddleSpeechRestorer struct {
	cfg PaddleSpeechConfig
}

// NewPaddleSpeechRestorer creates a CLI punctuation restorer
func NewPaddleSpeechRestorer(cfg PaddleSpeechConfig) *PaddleSpeechRestorer {
	if cfg.Binary == "" {
		cfg.Binary = "paddlespeech"
	}
	return &PaddleSpeechRestorer{cfg: cfg}
}

func (p *PaddleSpeechRestorer) Name() string { return "paddlespeech-punc" }

// Restore punctuates one segment
func (p *PaddleSpeechRestorer) Restore(ctx context.Context, text string) (string, error) {
	args := []string{"text", "--task", "punc", "--input", text}
	if p.cfg.Model != "" {
		args = append(args, "--model", p.cfg.Model)
	}

	out, err := runCommand(ctx, p.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("punctuation failed: %w", err)
	}
	return lastLine(out), nil
}
