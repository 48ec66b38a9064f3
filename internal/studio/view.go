package studio

import (
	"ai-profile-studio/internal/generation"
	"ai-profile-studio/internal/prompt"
	"ai-profile-studio/internal/refimage"
	"ai-profile-studio/internal/selection"
	"ai-profile-studio/internal/state"
)

// View is what a front-end renders.
type View struct {
	CredentialSet bool
	Selections    selection.Selections
	Prompt        string
	Output        prompt.Output
	Reference     *refimage.Image
	Images        []generation.Image
	Requested     int
	Failed        int
	Loading       bool
	Epoch         uint64
	// Notification is nil once it has expired or been dismissed.
	Notification  *state.Notification
	SafetyEngaged bool
	// Version grows by one with every state change.
	Version uint64
}

func (s *Studio) View() View {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.view(s.store.Get(), s.version)
}

func (s *Studio) view(snap state.Snapshot, version uint64) View {
	v := View{
		CredentialSet: s.HasCredential(),
		Selections:    snap.Selections.Clone(),
		Prompt:        prompt.Compile(snap.Selections, s.catalog),
		Output:        prompt.ResolveOutput(snap.Selections, s.catalog),
		Reference:     snap.Reference,
		Loading:       snap.Loading,
		Epoch:         snap.Epoch,
		SafetyEngaged: snap.SafetyEngaged,
		Version:       version,
	}
	if snap.Result != nil {
		v.Images = snap.Result.Images
		v.Requested = snap.Result.Requested
		v.Failed = snap.Result.Failed
	}
	if n, ok := s.board.Current(); ok {
		v.Notification = &n
	}
	return v
}
