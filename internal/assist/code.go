package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
)

type CodeTask string

const (
	CodeGenerate CodeTask = "generate"
	CodeReview   CodeTask = "review"
	CodeExplain  CodeTask = "explain"
	CodeFix      CodeTask = "fix"
)

const minDescriptionLength = 10

type CodeRequest struct {
	Task        CodeTask `json:"task"`
	Language    string   `json:"language"`
	Description string   `json:"description,omitempty"`
	Code        string   `json:"code,omitempty"`
	Error       string   `json:"error,omitempty"`
	Context     string   `json:"context,omitempty"`
	Focus       string   `json:"focus,omitempty"`
	Level       string   `json:"level,omitempty"`
	Sampling
}

type CodeResult struct {
	Task     CodeTask `json:"task"`
	Language string   `json:"language"`
	Content  string   `json:"content"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
}

type CodeService struct {
	gen    Generator
	logger *slog.Logger
}

func NewCodeService(gen Generator, logger *slog.Logger) *CodeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeService{gen: gen, logger: logger}
}

func (r *CodeRequest) normalize() error {
	if r.Task == "" {
		r.Task = CodeGenerate
	}
	if strings.TrimSpace(r.Language) == "" {
		r.Language = "python"
	}
	if r.Level == "" {
		r.Level = "beginner"
	}
	v := common.NewValidator()
	switch r.Task {
	case CodeGenerate:
		v.Field("description", r.Description, common.Required, common.MinLength(minDescriptionLength))
	case CodeReview, CodeExplain:
		v.Field("code", r.Code, common.Required)
	case CodeFix:
		v.Field("code", r.Code, common.Required)
		v.Field("error", r.Error, common.Required)
	default:
		v.Field("task", string(r.Task), func(f string, val interface{}) *common.ValidationError {
			return &common.ValidationError{Field: f, Value: val, Message: "must be one of generate, review, explain, fix"}
		})
	}
	return v.Error()
}

func codePrompt(r CodeRequest) []llm.Message {
	lang := r.Language
	block := fmt.Sprintf("```%s\n%s\n```", lang, r.Code)
	var sys, usr string
	switch r.Task {
	case CodeReview:
		sys = fmt.Sprintf("You are an expert code reviewer for %s.\nGive constructive feedback on correctness, readability and efficiency.", lang)
		usr = fmt.Sprintf("Review this %s code:\n%s\n", lang, block)
		if r.Focus != "" {
			usr += fmt.Sprintf("Focus particularly on: %s\n", r.Focus)
		}
		usr += "\nProvide:\n1. Overall assessment (Good/Needs Work/Poor)\n2. Issues found\n3. Specific improvement suggestions\n4. What is done well"
	case CodeExplain:
		sys = fmt.Sprintf("You are a patient programming teacher explaining %s code.\nExplain clearly for a %s level programmer.", lang, r.Level)
		usr = fmt.Sprintf("Explain this %s code in %s-friendly terms:\n%s\n\nProvide:\n1. What the code does\n2. Step-by-step explanation of key parts\n3. Concepts used\n4. When you would use this", lang, r.Level, block)
	case CodeFix:
		sys = fmt.Sprintf("You are an expert %s debugger. Find the root cause and return corrected code.", lang)
		usr = fmt.Sprintf("This %s code fails:\n%s\n\nError:\n%s\n\nProvide:\n1. Root cause\n2. The fixed code (in a code block)\n3. How to avoid it next time", lang, block, r.Error)
	default:
		sys = fmt.Sprintf("You are an expert %s programmer.\nGenerate clean, documented code with error handling.", lang)
		usr = fmt.Sprintf("Generate %s code for:\n%s\n", lang, r.Description)
		if r.Context != "" {
			usr += fmt.Sprintf("Context: %s\n", r.Context)
		}
		usr += "\nProvide:\n1. The code (in a code block)\n2. Brief explanation of how it works\n3. Usage example (if applicable)"
	}
	return []llm.Message{system(sys), user(usr)}
}

func (s *CodeService) Run(ctx context.Context, req CodeRequest) (CodeResult, error) {
	if err := req.normalize(); err != nil {
		return CodeResult{}, err
	}
	res, err := s.gen.Generate(ctx, codePrompt(req), req.options()...)
	if err != nil {
		s.logger.Error("assist.code.failed", "task", req.Task, "language", req.Language, "error", err)
		return CodeResult{}, err
	}
	s.logger.Info("assist.code.ok", "task", req.Task, "language", req.Language, "provider", res.Provider)
	return CodeResult{
		Task:     req.Task,
		Language: req.Language,
		Content:  res.Content,
		Provider: res.Provider,
		Model:    res.Model,
	}, nil
}
