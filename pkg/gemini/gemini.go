package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type IGemini interface {
	// AnalyzeImage sends the image with prompt; format is the image subtype ("png", "jpeg").
	AnalyzeImage(ctx context.Context, data []byte, format string, prompt string) (string, error)
	Close() error
}

type Config struct {
	APIKey    string
	ModelName string
}

type geminiClient struct {
	modelName string
	client    *genai.Client
}

func NewGeminiClient(cfg Config) (IGemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, err
	}

	return &geminiClient{
		modelName: modelName,
		client:    client,
	}, nil
}

func (g *geminiClient) AnalyzeImage(ctx context.Context, data []byte, format string, prompt string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty image data")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	res, err := model.GenerateContent(ctx, genai.Text(prompt), genai.ImageData(format, data))
	if err != nil {
		return "", err
	}

	return candidateText(res)
}

// candidateText concatenates the text parts of the first candidate. A candidate without
// text is an empty answer, not an error.
func candidateText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 {
		return "", errors.New("no response from Gemini API")
	}

	content := res.Candidates[0].Content
	if content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

func (g *geminiClient) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
