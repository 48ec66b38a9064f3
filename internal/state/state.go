// Package state is the single-session state container. Snapshots are
// immutable values; every transition is a pure function returning a new one.
package state

import (
	"time"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/generation"
	"ai-profile-studio/internal/refimage"
	"ai-profile-studio/internal/rules"
	"ai-profile-studio/internal/selection"
)

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
	NoticeLoading NoticeKind = "loading"
)

// Notification is the message currently shown to the user. TTL zero means it
// stays until replaced or dismissed.
type Notification struct {
	Seq     uint64
	Kind    NoticeKind
	Code    string
	Message string
	TTL     time.Duration
}

const codeSafety = "safety"

// Result is the outcome of the latest successful generation.
type Result struct {
	Images    []generation.Image
	Requested int
	Failed    int
	CreatedAt time.Time
}

type Snapshot struct {
	Selections    selection.Selections
	SafetyEngaged bool
	Reference     *refimage.Image
	Result        *Result
	Loading       bool
	// Epoch identifies the authoritative generation request.
	Epoch        uint64
	Notification *Notification
	NoticeSeq    uint64
}

// New returns the initial snapshot: default selections, nothing else.
func New(c *catalog.Catalog) Snapshot {
	defaults := selection.Defaults(c)
	res := rules.Normalize(c, defaults, defaults, false)
	return Snapshot{Selections: res.Selections}
}

func (s Snapshot) notify(kind NoticeKind, code, message string, ttl time.Duration) Snapshot {
	s.NoticeSeq++
	s.Notification = &Notification{
		Seq:     s.NoticeSeq,
		Kind:    kind,
		Code:    code,
		Message: message,
		TTL:     ttl,
	}
	return s
}

// ApplySelection sets one category and normalizes the result. The returned
// events are the rule events raised by this change.
func ApplySelection(c *catalog.Catalog, s Snapshot, categoryID, optionID string) (Snapshot, []rules.Event) {
	res := rules.Normalize(c, s.Selections, s.Selections.Set(categoryID, optionID), s.SafetyEngaged)

	wasEngaged := s.SafetyEngaged
	s.Selections = res.Selections
	s.SafetyEngaged = res.Engaged

	for _, ev := range res.Events {
		if ev.Kind == rules.EventSafetyOverride {
			s = s.notify(NoticeWarning, codeSafety, msgSafetyOverride, longTTL)
		}
	}
	if wasEngaged && !s.SafetyEngaged && s.Notification != nil && s.Notification.Code == codeSafety {
		s.Notification = nil
	}
	return s, res.Events
}

// ApplyReset rolls the whole session back: default selections, no reference
// image, no result. Any in-flight generation is invalidated.
func ApplyReset(c *catalog.Catalog, s Snapshot) Snapshot {
	next := New(c)
	next.Epoch = s.Epoch + 1
	next.NoticeSeq = s.NoticeSeq
	return next.notify(NoticeInfo, "", msgReset, shortTTL)
}

// ApplyUploadResult records the outcome of reading a reference image. A nil
// image with a nil error removes the current reference.
func ApplyUploadResult(s Snapshot, img *refimage.Image, err error) Snapshot {
	if err != nil {
		return s.notify(NoticeError, "", msgUploadFailed, 0)
	}
	s.Reference = img
	if img == nil {
		return s
	}
	return s.notify(NoticeInfo, "", msgUploaded, shortTTL)
}

// BeginGeneration marks a new authoritative request and returns its epoch.
func BeginGeneration(s Snapshot) (Snapshot, uint64) {
	s.Epoch++
	s.Loading = true
	s.Result = nil
	return s.notify(NoticeLoading, "", msgGenerating, 0), s.Epoch
}

// ApplyGenerationResult stores the outcome of the request started at epoch.
// Outcomes of superseded requests are dropped.
func ApplyGenerationResult(s Snapshot, epoch uint64, res generation.Result, err error, at time.Time) Snapshot {
	if epoch != s.Epoch || !s.Loading {
		return s
	}

	s.Loading = false
	if err != nil {
		return s.notify(NoticeError, "", "생성 실패: "+FailureMessage(err), 0)
	}

	s.Result = &Result{
		Images:    res.Images,
		Requested: res.Requested,
		Failed:    res.Failed,
		CreatedAt: at,
	}
	return s.notify(NoticeInfo, "", completionMessage(res), longTTL)
}

func ApplyCredentialSaved(s Snapshot) Snapshot {
	return s.notify(NoticeInfo, "", msgCredentialSaved, shortTTL)
}

func ApplyCredentialCleared(s Snapshot) Snapshot {
	return s.notify(NoticeInfo, "", msgCredentialCleared, shortTTL)
}

// ApplyDownloadAll announces a bulk download. It is a no-op without results.
func ApplyDownloadAll(s Snapshot) Snapshot {
	if s.Result == nil || len(s.Result.Images) == 0 {
		return s
	}
	return s.notify(NoticeInfo, "", msgDownloadAll, shortTTL)
}

// Dismiss clears the current notification.
func Dismiss(s Snapshot) Snapshot {
	s.Notification = nil
	return s
}
