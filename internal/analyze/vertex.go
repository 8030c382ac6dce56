package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const analysisSystemPrompt = "You are a document analyst. You receive the plain text of a document and " +
	"produce a structured analysis. Respond with a single JSON object with the keys: " +
	`"summary" (a concise summary of the document), "key_points" (array of the most ` +
	`important points), "topics" (array of topics covered), "sentiment" (one of ` +
	`"positive", "negative", "neutral", "mixed") and "document_type" (a short label ` +
	"such as \"report\", \"contract\", \"article\"). Output only the JSON object."

// VertexProvider streams document analysis from a Gemini model on Vertex AI
type VertexProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger *slog.Logger
}

// NewVertexProvider creates a provider bound to one Gemini model instance
func NewVertexProvider(ctx context.Context, projectID, location, modelName string, logger *slog.Logger) (*VertexProvider, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("projectID and location cannot be empty")
	}

	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(analysisSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	return &VertexProvider{
		client: client,
		model:  model,
		name:   modelName,
		logger: logger,
	}, nil
}

// Name returns the underlying model name
func (p *VertexProvider) Name() string {
	return p.name
}

// Close releases the underlying client
func (p *VertexProvider) Close() error {
	return p.client.Close()
}

// Analyze streams the model response, forwarding each text part through
// onChunk as it arrives and returning the accumulated raw output
func (p *VertexProvider) Analyze(ctx context.Context, text string, onChunk ChunkFunc) (string, error) {
	iter := p.model.GenerateContentStream(ctx, genai.Text(text))

	var raw string
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", p.classify(err)
		}

		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		raw += chunk
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	if raw == "" {
		return "", &Error{Class: ClassServerError, Message: "model returned an empty response"}
	}
	return raw, nil
}

// classify maps a Vertex AI call failure onto the retry taxonomy using its
// HTTP status
func (p *VertexProvider) classify(err error) error {
	class := ClassOther

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			class = ClassUnauthorized
		case gerr.Code == http.StatusNotFound:
			class = ClassNotFound
		case gerr.Code == http.StatusTooManyRequests:
			class = ClassRateLimited
		case gerr.Code >= http.StatusInternalServerError:
			class = ClassServerError
		}
	}

	p.logger.Warn("Vertex AI call failed",
		slog.String("model", p.name),
		slog.String("class", string(class)),
		slog.String("error", err.Error()),
	)

	return &Error{Class: class, Message: "model call failed", Err: err}
}

// responseText concatenates the text parts of one streamed response
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out += string(t)
		}
	}
	return out
}
