package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/deskpilot/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const providerGemini = "gemini"

// contentGenerator is the slice of *genai.Models the backend calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model for decisions in JSON response mode.
type Gemini struct {
	models contentGenerator
	cfg    config.OracleConfig
	logger *zap.Logger
}

// NewGemini initializes the client.
func NewGemini(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg, logger), nil
}

func newGemini(models contentGenerator, cfg config.OracleConfig, logger *zap.Logger) *Gemini {
	return &Gemini{
		models: models,
		cfg:    cfg,
		logger: logger.Named("oracle.gemini"),
	}
}

// Decide sends one generation request and returns the reply text.
func (g *Gemini) Decide(ctx context.Context, req DecisionRequest) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt(), genai.RoleUser),
		Temperature:       genai.Ptr(g.cfg.Temperature),
		ResponseMIMEType:  "application/json",
	}
	if g.cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(g.cfg.MaxOutputTokens)
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, genai.Text(req.UserPrompt()), genCfg)
	if err != nil {
		return "", &Error{Provider: providerGemini, Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &Error{Provider: providerGemini, Err: fmt.Errorf("no candidates returned")}
	}

	text := resp.Text()
	if text == "" {
		reason := resp.Candidates[0].FinishReason
		return "", &Error{Provider: providerGemini, Err: fmt.Errorf("empty reply (finish reason: %s)", reason)}
	}

	fields := []zap.Field{
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", time.Since(start)),
	}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	g.logger.Debug("Decision generated.", fields...)
	return text, nil
}
