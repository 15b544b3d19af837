// Package ai reads transactions out of receipt and statement images.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/logger"
	"fintrack/internal/parser"

	"google.golang.org/genai"
)

// ErrExtractionFailed wraps every failure of an extraction call.
var ErrExtractionFailed = errors.New("ai: extraction failed")

// Generator is the content generation surface of *genai.Models.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Extractor reads structured data from an uploaded document.
type Extractor interface {
	AnalyzeReceipt(ctx context.Context, data []byte, mimeType string, categories []string) (parser.ReceiptData, error)
	AnalyzeStatement(ctx context.Context, data []byte, mimeType string, income, expense []string) ([]parser.StatementEntry, error)
	AnalyzeItemizedReceipt(ctx context.Context, data []byte, mimeType string) (parser.ItemizedReceipt, error)
}

// NewClient opens a Gemini API client. An empty key falls back to the
// GOOGLE_API_KEY / GEMINI_API_KEY environment variables.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return client, nil
}

type Options struct {
	Model         string
	MaxConcurrent int
	Timeout       time.Duration
}

// Gemini implements Extractor on top of a Generator.
type Gemini struct {
	gen     Generator
	model   string
	timeout time.Duration
	sem     chan struct{}
}

var _ Extractor = (*Gemini)(nil)

func NewGemini(gen Generator, opts Options) *Gemini {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Gemini{
		gen:     gen,
		model:   opts.Model,
		timeout: opts.Timeout,
		sem:     make(chan struct{}, opts.MaxConcurrent),
	}
}

func (g *Gemini) AnalyzeReceipt(ctx context.Context, data []byte, mimeType string, categories []string) (parser.ReceiptData, error) {
	var out parser.ReceiptData
	err := g.extract(ctx, "receipt", data, mimeType, receiptPrompt(categories), receiptSchema, &out)
	return out, err
}

func (g *Gemini) AnalyzeStatement(ctx context.Context, data []byte, mimeType string, income, expense []string) ([]parser.StatementEntry, error) {
	var out []parser.StatementEntry
	if err := g.extract(ctx, "statement", data, mimeType, statementPrompt(income, expense), statementSchema, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gemini) AnalyzeItemizedReceipt(ctx context.Context, data []byte, mimeType string) (parser.ItemizedReceipt, error) {
	var out parser.ItemizedReceipt
	err := g.extract(ctx, "itemized_receipt", data, mimeType, itemizedPrompt, itemizedSchema, &out)
	return out, err
}

func (g *Gemini) extract(ctx context.Context, kind string, data []byte, mimeType, prompt string, schema *genai.Schema, out any) error {
	err := g.generate(ctx, data, mimeType, prompt, schema, out)
	if err != nil {
		logger.L().Warn().Err(err).Str("kind", kind).Int("bytes", len(data)).Msg("ai_extraction_failed")
		return fmt.Errorf("%w: %s: %w", ErrExtractionFailed, kind, err)
	}
	return nil
}

func (g *Gemini) generate(ctx context.Context, data []byte, mimeType, prompt string, schema *genai.Schema, out any) error {
	if len(data) == 0 {
		return errors.New("empty document")
	}
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.sem }()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := g.gen.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return err
	}
	if resp == nil {
		return errors.New("no response")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return errors.New("no response text")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
