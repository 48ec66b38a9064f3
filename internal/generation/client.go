// Package generation submits composed prompts to an image provider and
// normalizes its failures.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMoods qualify each image-conditioned call so parallel results differ.
var DefaultMoods = []string{
	"with a joyful atmosphere",
	"with a serene and peaceful atmosphere",
	"with a powerful and confident atmosphere",
	"with a mysterious and enigmatic atmosphere",
}

// ErrNoImage is returned by a provider when a call succeeded but carried no
// image payload.
var ErrNoImage = errors.New("provider returned no image")

// Image is one generated payload.
type Image struct {
	Data     []byte
	MIMEType string
}

// Reference is the face image generations are conditioned on.
type Reference struct {
	Data     []byte
	MIMEType string
}

type Request struct {
	Credential     string
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	ImageCount     int
	Reference      *Reference
}

// Result holds the successful images in request order. Failed counts the
// requested images that did not arrive.
type Result struct {
	Images    []Image
	Requested int
	Failed    int
}

// ImagesRequest is one text-only call asking for Count images.
type ImagesRequest struct {
	Prompt      string
	AspectRatio string
	Count       int
}

// EditRequest is one image-conditioned call producing at most one image.
type EditRequest struct {
	Prompt    string
	Reference Reference
}

// Provider is the external image service.
type Provider interface {
	GenerateImages(ctx context.Context, req ImagesRequest) ([]Image, error)
	EditImage(ctx context.Context, req EditRequest) (Image, error)
}

// ProviderFactory builds a provider bound to a credential. It is called once
// per Generate so a changed credential applies immediately.
type ProviderFactory func(ctx context.Context, credential string) (Provider, error)

type Options struct {
	NewProvider ProviderFactory
	Moods       []string
	Logger      *slog.Logger
}

type Client struct {
	newProvider ProviderFactory
	moods       []string
	logger      *slog.Logger
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	moods := opts.Moods
	if len(moods) == 0 {
		moods = DefaultMoods
	}

	return &Client{
		newProvider: opts.NewProvider,
		moods:       append([]string(nil), moods...),
		logger:      logger,
	}
}

// Generate runs one generation attempt. Every error it returns is an *Error.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return Result{}, ErrMissingCredential
	}
	if c.newProvider == nil {
		return Result{}, &Error{Kind: KindUnknown, Message: "no provider configured"}
	}

	provider, err := c.newProvider(ctx, credential)
	if err != nil {
		c.logger.Error("create provider failed", "err", err)
		return Result{}, Classify(err)
	}

	if req.Reference != nil && len(req.Reference.Data) > 0 {
		return c.generateFromReference(ctx, provider, req)
	}
	return c.generateFromText(ctx, provider, req)
}

func (c *Client) generateFromReference(ctx context.Context, provider Provider, req Request) (Result, error) {
	n := req.ImageCount
	if n < 1 {
		n = 1
	}
	if n > len(c.moods) {
		n = len(c.moods)
	}

	results := make([]*Image, n)
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		mood := c.moods[i]
		eg.Go(func() error {
			start := time.Now()
			img, err := provider.EditImage(ctx, EditRequest{
				Prompt:    EnhancedPrompt(mood, req.Prompt, req.NegativePrompt),
				Reference: *req.Reference,
			})
			if err == nil && len(img.Data) == 0 {
				err = ErrNoImage
			}
			if err != nil {
				c.logger.Warn("reference generation failed",
					"index", i,
					"mood", mood,
					"dur_ms", time.Since(start).Milliseconds(),
					"err", err,
				)
				return nil
			}
			results[i] = &img
			return nil
		})
	}
	_ = eg.Wait()

	out := Result{Requested: n}
	for _, img := range results {
		if img == nil {
			out.Failed++
			continue
		}
		out.Images = append(out.Images, *img)
	}

	if len(out.Images) == 0 {
		return Result{}, &Error{
			Kind:    KindEmptyResult,
			Message: fmt.Sprintf("all %d reference generations failed", n),
		}
	}

	c.logger.Info("reference generation done", "requested", n, "failed", out.Failed)
	return out, nil
}

func (c *Client) generateFromText(ctx context.Context, provider Provider, req Request) (Result, error) {
	n := req.ImageCount
	if n < 1 {
		n = 1
	}

	images, err := provider.GenerateImages(ctx, ImagesRequest{
		Prompt:      TextPrompt(req.Prompt, req.NegativePrompt),
		AspectRatio: req.AspectRatio,
		Count:       n,
	})
	if err != nil {
		c.logger.Error("text generation failed", "err", err)
		return Result{}, Classify(err)
	}

	out := Result{Requested: n}
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		out.Images = append(out.Images, img)
	}
	if len(out.Images) == 0 {
		return Result{}, &Error{Kind: KindEmptyResult, Message: "provider response contained no images"}
	}
	if len(out.Images) < n {
		out.Failed = n - len(out.Images)
	}

	c.logger.Info("text generation done", "requested", n, "returned", len(out.Images))
	return out, nil
}

// EnhancedPrompt is the text sent alongside the reference image.
func EnhancedPrompt(mood, prompt, negative string) string {
	return "Maintain the facial features and identity of the person in the provided image. " +
		"Do not change the person's face. Place this person in a new scene. " +
		mood + ". New description: " + prompt +
		". Avoid the following elements, concepts, and styles: " + negative
}

// TextPrompt is the text sent for text-only generation.
func TextPrompt(prompt, negative string) string {
	return prompt + ". Do not include the following: " + negative
}
