package generation

import (
	"context"
	"sync"
)

type mockProvider struct {
	mu sync.Mutex

	GenerateImagesFunc func(ctx context.Context, req ImagesRequest) ([]Image, error)
	EditImageFunc      func(ctx context.Context, req EditRequest) (Image, error)

	imagesCalls []ImagesRequest
	editCalls   []EditRequest
}

func (m *mockProvider) GenerateImages(ctx context.Context, req ImagesRequest) ([]Image, error) {
	m.mu.Lock()
	m.imagesCalls = append(m.imagesCalls, req)
	m.mu.Unlock()

	if m.GenerateImagesFunc != nil {
		return m.GenerateImagesFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockProvider) EditImage(ctx context.Context, req EditRequest) (Image, error) {
	m.mu.Lock()
	m.editCalls = append(m.editCalls, req)
	m.mu.Unlock()

	if m.EditImageFunc != nil {
		return m.EditImageFunc(ctx, req)
	}
	return Image{}, nil
}

func (m *mockProvider) editPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.editCalls))
	for _, c := range m.editCalls {
		out = append(out, c.Prompt)
	}
	return out
}

func factoryFor(p Provider, seen *[]string) ProviderFactory {
	return func(ctx context.Context, credential string) (Provider, error) {
		if seen != nil {
			*seen = append(*seen, credential)
		}
		return p, nil
	}
}
