// Package studio drives one profile-generation session. Both front-ends go
// through it, so selection rules, generation and notifications behave the
// same everywhere.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/credential"
	"ai-profile-studio/internal/generation"
	"ai-profile-studio/internal/notice"
	"ai-profile-studio/internal/prompt"
	"ai-profile-studio/internal/refimage"
	"ai-profile-studio/internal/rules"
	"ai-profile-studio/internal/state"
)

var (
	ErrUnknownOption = errors.New("unknown option")
	ErrNoImage       = errors.New("no such image")
)

// Generator is the generation boundary.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

type Options struct {
	Catalog     *catalog.Catalog
	Credentials credential.Store
	Generator   Generator
	Logger      *slog.Logger
	// OnChange is called after every state change, in version order.
	// Listeners must not change studio state themselves.
	OnChange func(View)
	Now      func() time.Time
}

type Studio struct {
	catalog     *catalog.Catalog
	store       *state.Store
	board       *notice.Board
	credentials credential.Store
	generator   Generator
	logger      *slog.Logger
	now         func() time.Time

	syncMu  sync.Mutex
	version uint64

	mu       sync.RWMutex
	onChange []func(View)

	deliverMu   sync.Mutex
	deliverCond *sync.Cond
	delivered   uint64

	wg sync.WaitGroup
}

func New(opts Options) (*Studio, error) {
	if opts.Credentials == nil {
		return nil, errors.New("credential store is nil")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator is nil")
	}

	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Studio{
		catalog:     cat,
		store:       state.NewStore(cat),
		board:       notice.NewBoard(),
		credentials: opts.Credentials,
		generator:   opts.Generator,
		logger:      logger,
		now:         now,
	}
	s.deliverCond = sync.NewCond(&s.deliverMu)
	if opts.OnChange != nil {
		s.onChange = append(s.onChange, opts.OnChange)
	}
	return s, nil
}

// Subscribe registers an additional change listener.
func (s *Studio) Subscribe(fn func(View)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Studio) Catalog() *catalog.Catalog {
	return s.catalog
}

// EffectiveCatalog returns the categories with options filtered for the
// current subject.
func (s *Studio) EffectiveCatalog() []catalog.Category {
	return rules.EffectiveCatalog(s.catalog, s.store.Get().Selections)
}

// Select chooses an option. Unknown pairs are rejected before they reach the
// rules engine.
func (s *Studio) Select(categoryID, optionID string) (View, error) {
	if _, ok := s.catalog.FindOption(categoryID, optionID); !ok {
		return s.View(), fmt.Errorf("%w: %s=%s", ErrUnknownOption, categoryID, optionID)
	}

	var events []rules.Event
	v := s.update(func(snap state.Snapshot) state.Snapshot {
		snap, events = state.ApplySelection(s.catalog, snap, categoryID, optionID)
		return snap
	})
	for _, ev := range events {
		s.logger.Info("selection overridden", "kind", ev.Kind, "category", ev.Category, "from", ev.From, "to", ev.To)
	}
	return v, nil
}

func (s *Studio) Reset() View {
	return s.update(func(snap state.Snapshot) state.Snapshot {
		return state.ApplyReset(s.catalog, snap)
	})
}

// Upload validates and stores a reference image. Invalid files keep the
// previous reference and raise an error notification.
func (s *Studio) Upload(data []byte, name string) (View, error) {
	img, err := refimage.Decode(data, name)
	if err != nil {
		s.logger.Warn("reference upload rejected", "name", name, "err", err)
	}
	v := s.update(func(snap state.Snapshot) state.Snapshot {
		return state.ApplyUploadResult(snap, img, err)
	})
	return v, err
}

func (s *Studio) RemoveReference() View {
	return s.update(func(snap state.Snapshot) state.Snapshot {
		return state.ApplyUploadResult(snap, nil, nil)
	})
}

func (s *Studio) Dismiss() View {
	return s.update(state.Dismiss)
}

// Prompt returns the compiled prompt for the current selections.
func (s *Studio) Prompt() string {
	return prompt.Compile(s.store.Get().Selections, s.catalog)
}

// Generate runs one generation attempt and waits for it.
func (s *Studio) Generate(ctx context.Context) (View, error) {
	req, epoch := s.begin()
	return s.run(ctx, req, epoch)
}

// StartGeneration begins a generation in the background and returns its
// epoch. The request is detached from ctx cancellation.
func (s *Studio) StartGeneration(ctx context.Context) uint64 {
	req, epoch := s.begin()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.run(context.WithoutCancel(ctx), req, epoch)
	}()
	return epoch
}

// Wait blocks until background generations have finished.
func (s *Studio) Wait() {
	s.wg.Wait()
}

func (s *Studio) begin() (generation.Request, uint64) {
	cred, err := s.credentials.Get()
	if err != nil {
		s.logger.Error("read credential failed", "err", err)
	}

	var (
		req   generation.Request
		epoch uint64
	)
	s.update(func(snap state.Snapshot) state.Snapshot {
		out := prompt.ResolveOutput(snap.Selections, s.catalog)
		req = generation.Request{
			Credential:     cred,
			Prompt:         prompt.Compile(snap.Selections, s.catalog),
			NegativePrompt: prompt.NegativePrompt,
			AspectRatio:    out.AspectRatio,
			ImageCount:     out.Count,
		}
		if snap.Reference != nil {
			req.Reference = &generation.Reference{Data: snap.Reference.Data, MIMEType: snap.Reference.MIMEType}
		}
		snap, epoch = state.BeginGeneration(snap)
		return snap
	})
	return req, epoch
}

func (s *Studio) run(ctx context.Context, req generation.Request, epoch uint64) (View, error) {
	start := s.now()
	logger := s.logger.With("generation_id", uuid.NewString(), "epoch", epoch)
	logger.Info("generation started",
		"images", req.ImageCount,
		"aspect_ratio", req.AspectRatio,
		"reference", req.Reference != nil,
	)

	res, err := s.generator.Generate(ctx, req)
	if err != nil {
		logger.Error("generation failed", "kind", generation.KindOf(err), "err", err)
	} else {
		logger.Info("generation finished",
			"images", len(res.Images),
			"failed", res.Failed,
			"dur_ms", s.now().Sub(start).Milliseconds(),
		)
	}

	v := s.update(func(snap state.Snapshot) state.Snapshot {
		return state.ApplyGenerationResult(snap, epoch, res, err, s.now())
	})
	return v, err
}

// HasCredential reports whether a credential is stored.
func (s *Studio) HasCredential() bool {
	cred, err := s.credentials.Get()
	if err != nil {
		s.logger.Error("read credential failed", "err", err)
		return false
	}
	return cred != ""
}

func (s *Studio) SaveCredential(value string) (View, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.View(), errors.New("credential is empty")
	}
	if err := s.credentials.Set(value); err != nil {
		return s.View(), fmt.Errorf("save credential: %w", err)
	}
	return s.update(state.ApplyCredentialSaved), nil
}

func (s *Studio) ClearCredential() (View, error) {
	if err := s.credentials.Delete(); err != nil {
		return s.View(), fmt.Errorf("clear credential: %w", err)
	}
	return s.update(state.ApplyCredentialCleared), nil
}

// Download is one generated image offered as a file.
type Download struct {
	Index    int
	Filename string
	MIMEType string
	Data     []byte
}

// Image returns one image of the latest result.
func (s *Studio) Image(index int) (Download, error) {
	snap := s.store.Get()
	if snap.Result == nil || index < 0 || index >= len(snap.Result.Images) {
		return Download{}, fmt.Errorf("%w: %d", ErrNoImage, index)
	}
	return toDownload(snap.Result, index), nil
}

// DownloadAll returns every image of the latest result and announces the
// bulk download.
func (s *Studio) DownloadAll() []Download {
	var out []Download
	s.update(func(snap state.Snapshot) state.Snapshot {
		if snap.Result != nil {
			for i := range snap.Result.Images {
				out = append(out, toDownload(snap.Result, i))
			}
		}
		return state.ApplyDownloadAll(snap)
	})
	return out
}

func toDownload(res *state.Result, index int) Download {
	img := res.Images[index]
	return Download{
		Index:    index,
		Filename: refimage.DownloadName(res.CreatedAt, index, img.MIMEType),
		MIMEType: img.MIMEType,
		Data:     img.Data,
	}
}

func (s *Studio) update(fn func(state.Snapshot) state.Snapshot) View {
	// The board must see transitions in the order the store applied them.
	s.syncMu.Lock()
	prev, next := s.store.Update(fn)
	s.board.Sync(prev, next)
	s.version++
	v := s.view(next, s.version)
	s.syncMu.Unlock()

	s.deliver(v)
	return v
}

// deliver hands v to the listeners once every older version has been
// delivered, so subscribers never see state go backwards.
func (s *Studio) deliver(v View) {
	s.deliverMu.Lock()
	for s.delivered+1 != v.Version {
		s.deliverCond.Wait()
	}
	s.deliverMu.Unlock()

	s.mu.RLock()
	listeners := append([]func(View){}, s.onChange...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(v)
	}

	s.deliverMu.Lock()
	s.delivered = v.Version
	s.deliverCond.Broadcast()
	s.deliverMu.Unlock()
}
