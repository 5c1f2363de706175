package recognition

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const readingPrompt = "This is a photo of a utility meter (water or gas). " +
	"Read the numeric value shown on the meter display and respond with that " +
	"integer only, no units and no other text."

// Reading is the result of recognizing a meter image
type Reading struct {
	UUID     string
	Value    int
	ImageURL string
}

// Recognizer extracts a numeric reading from a meter image
type Recognizer interface {
	RecognizeReading(ctx context.Context, imageData []byte, mimeType string) (*Reading, error)
}

// Gemini implements Recognizer using the Google Gemini API
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	logger  *zap.Logger
}

// NewGemini creates a new Gemini recognizer
func NewGemini(apiKey, modelName string, timeout time.Duration, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   client.GenerativeModel(modelName),
		timeout: timeout,
		logger:  logger,
	}, nil
}

var integerPattern = regexp.MustCompile(`-?\d+`)

// RecognizeReading stages the image to a temporary file, uploads it through
// the Gemini file API and asks the model for the meter value. The temporary
// file is removed on every exit path. The uploaded file URI becomes the
// measure's image URL.
func (g *Gemini) RecognizeReading(ctx context.Context, imageData []byte, mimeType string) (*Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	measureUUID := uuid.NewString()

	staged, err := os.CreateTemp("", "measure-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to stage image: %w", err)
	}
	defer func() {
		staged.Close()
		if err := os.Remove(staged.Name()); err != nil {
			g.logger.Warn("failed to remove staged image", zap.Error(err), zap.String("path", staged.Name()))
		}
	}()

	if _, err := staged.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write staged image: %w", err)
	}
	if _, err := staged.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind staged image: %w", err)
	}

	file, err := g.client.UploadFile(ctx, "", staged, &genai.UploadFileOptions{
		MIMEType:    mimeType,
		DisplayName: measureUUID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.FileData{MIMEType: mimeType, URI: file.URI},
		genai.Text(readingPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize reading: %w", err)
	}

	value, err := extractInteger(resp)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("reading recognized",
		zap.String("measure_uuid", measureUUID),
		zap.Int("value", value),
	)

	return &Reading{
		UUID:     measureUUID,
		Value:    value,
		ImageURL: file.URI,
	}, nil
}

func extractInteger(resp *genai.GenerateContentResponse) (int, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return 0, fmt.Errorf("empty response from recognition api")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	match := integerPattern.FindString(text.String())
	if match == "" {
		return 0, fmt.Errorf("recognition response contains no integer: %q", text.String())
	}

	value, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("failed to parse recognized value %q: %w", match, err)
	}

	return value, nil
}

// Close closes the underlying Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
