package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"ai-profile-studio/internal/generation"
)

const (
	DefaultImageModel = "imagen-4.0-generate-001"
	DefaultEditModel  = "gemini-2.5-flash-image-preview"

	defaultBaseURL    = "https://generativelanguage.googleapis.com"
	defaultAPIVersion = "v1beta"
	outputMIMEType    = "image/jpeg"
)

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	ImageModel string
	EditModel  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Gemini API. It implements generation.Provider.
type Client struct {
	genai      *genai.Client
	imageModel string
	editModel  string
	logger     *slog.Logger
}

var _ generation.Provider = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL + "/",
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		genai:      gc,
		imageModel: firstNonEmpty(opts.ImageModel, DefaultImageModel),
		editModel:  firstNonEmpty(opts.EditModel, DefaultEditModel),
		logger:     logger,
	}, nil
}

// Factory returns a generation.ProviderFactory that builds a client per
// credential with the remaining options fixed.
func Factory(opts Options) generation.ProviderFactory {
	return func(ctx context.Context, credential string) (generation.Provider, error) {
		o := opts
		o.APIKey = credential
		return New(ctx, o)
	}
}

// GenerateImages runs one text-to-image call.
func (c *Client) GenerateImages(ctx context.Context, req generation.ImagesRequest) ([]generation.Image, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}

	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(req.Count),
		OutputMIMEType: outputMIMEType,
		AspectRatio:    req.AspectRatio,
	}

	resp, err := c.genai.Models.GenerateImages(ctx, c.imageModel, prompt, cfg)
	if err != nil {
		return nil, classify(err)
	}

	var out []generation.Image
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi != nil && gi.RAIFilteredReason != "" {
				c.logger.Warn("image filtered", "reason", gi.RAIFilteredReason)
			}
			continue
		}
		mimeType := gi.Image.MIMEType
		if mimeType == "" {
			mimeType = outputMIMEType
		}
		out = append(out, generation.Image{Data: gi.Image.ImageBytes, MIMEType: mimeType})
	}

	c.logger.Debug("gemini images", "model", c.imageModel, "requested", req.Count, "returned", len(out))
	return out, nil
}

// EditImage runs one image-conditioned call and returns the first inline
// image in the response.
func (c *Client) EditImage(ctx context.Context, req generation.EditRequest) (generation.Image, error) {
	if len(req.Reference.Data) == 0 {
		return generation.Image{}, errors.New("reference image is empty")
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Reference.Data, req.Reference.MIMEType),
		genai.NewPartFromText(req.Prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	cfg.ResponseModalities = append(cfg.ResponseModalities, "IMAGE", "TEXT")

	resp, err := c.genai.Models.GenerateContent(ctx, c.editModel, contents, cfg)
	if err != nil {
		return generation.Image{}, classify(err)
	}

	img, ok := firstInlineImage(resp)
	if !ok {
		return generation.Image{}, generation.ErrNoImage
	}
	return img, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) (generation.Image, bool) {
	if resp == nil {
		return generation.Image{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			mimeType := p.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			return generation.Image{Data: p.InlineData.Data, MIMEType: mimeType}, true
		}
	}
	return generation.Image{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
