package gateway

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/valpere/mythmaker/internal/role"
)

type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	deadline bool
}

// fakeGenerator records calls and answers with generateFunc.
type fakeGenerator struct {
	mu           sync.Mutex
	calls        []generateCall
	generateFunc func(ctx context.Context) (*genai.GenerateContentResponse, error)
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	_, hasDeadline := ctx.Deadline()
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{model: model, contents: contents, config: config, deadline: hasDeadline})
	f.mu.Unlock()

	if f.generateFunc != nil {
		return f.generateFunc(ctx)
	}
	return textResponse("ok"), nil
}

func (f *fakeGenerator) lastCall(t *testing.T) generateCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "expected at least one GenerateContent call")
	return f.calls[len(f.calls)-1]
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, s := range texts {
		parts = append(parts, &genai.Part{Text: s})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{0, 0, 0, 255})
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

var testRole = role.Descriptor{Name: "Bard", Instruction: "Write a myth."}

func TestNewGeminiGateway(t *testing.T) {
	t.Run("requires a generator", func(t *testing.T) {
		_, err := NewGeminiGateway(nil, Options{})
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		g, err := NewGeminiGateway(&fakeGenerator{}, Options{})
		require.NoError(t, err)

		assert.Equal(t, DefaultModel, g.model)
		assert.Equal(t, DefaultTemperature, g.temperature)
		assert.Equal(t, DefaultCallTimeout, g.timeout)
		assert.Equal(t, DefaultJPEGQuality, g.quality)
		assert.Nil(t, g.limiter)
	})

	t.Run("explicit zero temperature is kept", func(t *testing.T) {
		zero := float32(0)
		g, err := NewGeminiGateway(&fakeGenerator{}, Options{Temperature: &zero, RequestsPerMinute: 10})
		require.NoError(t, err)

		assert.Equal(t, float32(0), g.temperature)
		assert.NotNil(t, g.limiter)
	})
}

func TestGeminiGateway_Invoke_TextOnly(t *testing.T) {
	gen := &fakeGenerator{}
	g, err := NewGeminiGateway(gen, Options{Model: "gemini-test"})
	require.NoError(t, err)

	res := g.Invoke(context.Background(), Request{Role: testRole, Prompt: "Write the myth."})

	require.False(t, res.Failed())
	assert.Equal(t, "ok", res.String())
	assert.Equal(t, "Bard", res.Role)

	call := gen.lastCall(t)
	assert.Equal(t, "gemini-test", call.model)
	assert.True(t, call.deadline, "every call must carry a deadline")

	require.Len(t, call.contents, 1)
	parts := call.contents[0].Parts
	require.Len(t, parts, 1)
	assert.Equal(t, "Write the myth.", parts[0].Text)

	require.NotNil(t, call.config.SystemInstruction)
	require.NotEmpty(t, call.config.SystemInstruction.Parts)
	assert.Equal(t, "Write a myth.", call.config.SystemInstruction.Parts[0].Text)
	require.NotNil(t, call.config.Temperature)
	assert.InDelta(t, 0.7, *call.config.Temperature, 1e-6)
	assert.Empty(t, call.config.Tools)
}

func TestGeminiGateway_Invoke_ImageFirst(t *testing.T) {
	gen := &fakeGenerator{}
	g, err := NewGeminiGateway(gen, Options{})
	require.NoError(t, err)

	img := pngBytes(t)
	g.Invoke(context.Background(), Request{
		Role:          testRole,
		Prompt:        "Describe the atmosphere.",
		Image:         img,
		ImageMIMEType: "image/png",
	})

	parts := gen.lastCall(t).contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData, "image must precede the prompt")
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	assert.Equal(t, img, parts[0].InlineData.Data)
	assert.Equal(t, "Describe the atmosphere.", parts[1].Text)
}

func TestGeminiGateway_Invoke_SniffsMissingMIME(t *testing.T) {
	gen := &fakeGenerator{}
	g, err := NewGeminiGateway(gen, Options{})
	require.NoError(t, err)

	g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p", Image: pngBytes(t)})

	parts := gen.lastCall(t).contents[0].Parts
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
}

func TestGeminiGateway_Invoke_CompressesImage(t *testing.T) {
	gen := &fakeGenerator{}
	g, err := NewGeminiGateway(gen, Options{CompressImages: true, JPEGQuality: 50})
	require.NoError(t, err)

	g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p", Image: pngBytes(t), ImageMIMEType: "image/png"})

	blob := gen.lastCall(t).contents[0].Parts[0].InlineData
	assert.Equal(t, "image/jpeg", blob.MIMEType)
	_, format, err := image.Decode(bytes.NewReader(blob.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestGeminiGateway_Invoke_SearchGrounding(t *testing.T) {
	gen := &fakeGenerator{}
	g, err := NewGeminiGateway(gen, Options{})
	require.NoError(t, err)

	g.Invoke(context.Background(), Request{Role: testRole, Prompt: "Find lore", SearchGrounding: true})

	tools := gen.lastCall(t).config.Tools
	require.Len(t, tools, 1)
	assert.NotNil(t, tools[0].GoogleSearch)
}

func TestGeminiGateway_Invoke_ConcatenatesTextParts(t *testing.T) {
	gen := &fakeGenerator{
		generateFunc: func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			resp := textResponse("The ravens ", "", "never leave.")
			resp.Candidates[0].Content.Parts = append(resp.Candidates[0].Content.Parts,
				&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("x")}})
			resp.Candidates = append(resp.Candidates, &genai.Candidate{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "second candidate"}}},
			})
			return resp, nil
		},
	}
	g, err := NewGeminiGateway(gen, Options{})
	require.NoError(t, err)

	res := g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p"})

	assert.Equal(t, "The ravens never leave.", res.String())
}

func TestGeminiGateway_Invoke_NoText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil response", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"empty parts", textResponse()},
		{"empty text", textResponse("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{
				generateFunc: func(ctx context.Context) (*genai.GenerateContentResponse, error) {
					return tt.resp, nil
				},
			}
			g, err := NewGeminiGateway(gen, Options{})
			require.NoError(t, err)

			res := g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p"})

			assert.False(t, res.Failed())
			assert.Equal(t, NoResponse, res.String())
		})
	}
}

func TestGeminiGateway_Invoke_FailureIsRecovered(t *testing.T) {
	gen := &fakeGenerator{
		generateFunc: func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("quota exhausted")
		},
	}
	g, err := NewGeminiGateway(gen, Options{})
	require.NoError(t, err)

	res := g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p"})

	assert.True(t, res.Failed())
	assert.Equal(t, "Error: quota exhausted", res.String())
	assert.True(t, strings.HasPrefix(res.String(), ErrorPrefix))
}

func TestGeminiGateway_Invoke_Timeout(t *testing.T) {
	gen := &fakeGenerator{
		generateFunc: func(ctx context.Context) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	g, err := NewGeminiGateway(gen, Options{CallTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	res := g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p"})

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestGeminiGateway_Invoke_CancelledWhileRateLimited(t *testing.T) {
	gen := &fakeGenerator{}
	g, err := NewGeminiGateway(gen, Options{RequestsPerMinute: 1})
	require.NoError(t, err)

	// The first call consumes the only token.
	require.False(t, g.Invoke(context.Background(), Request{Role: testRole, Prompt: "p"}).Failed())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := g.Invoke(ctx, Request{Role: testRole, Prompt: "p"})

	assert.True(t, res.Failed())
	assert.Contains(t, res.String(), "rate limiter")
	assert.Len(t, gen.calls, 1)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "lore", Result{Text: "lore"}.String())
	assert.Equal(t, "Error: boom", Result{Text: "ignored", Err: errors.New("boom")}.String())
}
