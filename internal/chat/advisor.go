package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/ai"

	"github.com/yuin/goldmark"
	"google.golang.org/genai"
)

// ErrAdviceFailed wraps every failure of an advice call.
var ErrAdviceFailed = errors.New("chat: advice failed")

// FallbackReply is returned when the model answers with no text.
const FallbackReply = "Não consegui pensar em uma resposta agora."

// Turn is one earlier message of the conversation. Role is "user" or "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Reply struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
}

// Advisor answers free-form questions about the user's finances.
type Advisor struct {
	gen     ai.Generator
	model   string
	timeout time.Duration
}

func NewAdvisor(gen ai.Generator, model string, timeout time.Duration) *Advisor {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Advisor{gen: gen, model: model, timeout: timeout}
}

// Advise sends message after history with the instruction built from c.
// Web search is enabled and the cited pages come back as sources.
func (a *Advisor) Advise(ctx context.Context, message string, history []Turn, c Context) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, h := range history {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		role := genai.RoleUser
		if h.Role == genai.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(h.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	resp, err := a.gen.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildInstruction(c), genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %w", ErrAdviceFailed, err)
	}
	if resp == nil {
		return Reply{Text: FallbackReply}, nil
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		text = FallbackReply
	}
	return Reply{Text: text, Sources: sources(resp)}, nil
}

// sources collects the web citations of the first candidate, first
// occurrence of each URI wins.
func sources(resp *genai.GenerateContentResponse) []Source {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []Source
	seen := map[string]bool{}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		if seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		out = append(out, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return out
}

// RenderHTML converts a markdown reply to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
