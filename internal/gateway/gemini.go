package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/valpere/mythmaker/internal/imgutil"
)

const (
	DefaultModel       = "gemini-2.5-pro"
	DefaultTemperature = float32(0.7)
	DefaultCallTimeout = 120 * time.Second
	DefaultJPEGQuality = 85
)

// ContentGenerator is the slice of the genai client the gateway needs.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tune a GeminiGateway. Zero values select the defaults.
type Options struct {
	Model             string
	Temperature       *float32
	CallTimeout       time.Duration
	RequestsPerMinute int
	CompressImages    bool
	JPEGQuality       int
}

// GeminiGateway calls a Gemini model through the genai SDK.
type GeminiGateway struct {
	models      ContentGenerator
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	compress    bool
	quality     int
}

// NewGeminiClient builds a genai client for the Gemini API backend. An empty
// baseURL selects the public endpoint.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// NewGeminiGateway wraps models with the given options.
func NewGeminiGateway(models ContentGenerator, opts Options) (*GeminiGateway, error) {
	if models == nil {
		return nil, fmt.Errorf("content generator is required")
	}

	g := &GeminiGateway{
		models:      models,
		model:       opts.Model,
		temperature: DefaultTemperature,
		timeout:     opts.CallTimeout,
		compress:    opts.CompressImages,
		quality:     opts.JPEGQuality,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if opts.Temperature != nil {
		g.temperature = *opts.Temperature
	}
	if g.timeout <= 0 {
		g.timeout = DefaultCallTimeout
	}
	if g.quality <= 0 || g.quality > 100 {
		g.quality = DefaultJPEGQuality
	}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return g, nil
}

// Invoke performs one synchronous generation for req.Role. Any failure is
// logged with the role name and returned inside the Result.
func (g *GeminiGateway) Invoke(ctx context.Context, req Request) Result {
	slog.InfoContext(ctx, "executing role",
		"role", req.Role.Name,
		"search", req.SearchGrounding,
		"image_bytes", len(req.Image))

	start := time.Now()
	text, err := g.generate(ctx, req)
	res := Result{Role: req.Role.Name, Text: text, Err: err, Latency: time.Since(start)}

	if err != nil {
		slog.ErrorContext(ctx, "role failed", "role", req.Role.Name, "error", err)
		return res
	}

	slog.DebugContext(ctx, "role finished", "role", req.Role.Name, "latency", res.Latency, "chars", len(text))
	return res
}

func (g *GeminiGateway) generate(ctx context.Context, req Request) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromParts(g.buildParts(ctx, req), genai.RoleUser)}

	resp, err := g.models.GenerateContent(callCtx, g.model, contents, g.buildConfig(req))
	if err != nil {
		return "", err
	}

	return extractText(resp), nil
}

func (g *GeminiGateway) buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Role.Instruction, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}

	// Search queries and their results are resolved by the service itself.
	if req.SearchGrounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	return config
}

// buildParts places the image, when present, ahead of the text prompt.
func (g *GeminiGateway) buildParts(ctx context.Context, req Request) []*genai.Part {
	parts := make([]*genai.Part, 0, 2)

	if len(req.Image) > 0 {
		data, mimeType := g.prepareImage(ctx, req.Image, req.ImageMIMEType)
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}})
	}

	return append(parts, genai.NewPartFromText(req.Prompt))
}

func (g *GeminiGateway) prepareImage(ctx context.Context, data []byte, mimeType string) ([]byte, string) {
	if mimeType == "" {
		detected, ok := imgutil.DetectMIMEType(data)
		if !ok {
			slog.WarnContext(ctx, "image MIME type does not look like an image", "detected_mime_type", detected)
		}
		mimeType = detected
	}

	if !g.compress {
		return data, mimeType
	}

	compressed, err := imgutil.CompressToJPEG(data, g.quality)
	if err != nil {
		slog.WarnContext(ctx, "image compression failed, sending original", "error", err)
		return data, mimeType
	}
	return compressed, imgutil.JPEGMIMEType
}

// extractText concatenates every text part of the first candidate in order.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return NoResponse
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return NoResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	if sb.Len() == 0 {
		return NoResponse
	}
	return sb.String()
}
