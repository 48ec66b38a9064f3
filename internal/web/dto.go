package web

import (
	"strconv"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/refimage"
	"ai-profile-studio/internal/studio"
)

type apiError struct {
	Error string `json:"error"`
}

type optionJSON struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type categoryJSON struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Options []optionJSON `json:"options"`
}

type referenceJSON struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	URL      string `json:"url"`
}

type imageJSON struct {
	Index    int    `json:"index"`
	MIMEType string `json:"mimeType"`
	URL      string `json:"url"`
}

type notificationJSON struct {
	Seq     uint64 `json:"seq"`
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	TTLMs   int64  `json:"ttlMs"`
}

type stateJSON struct {
	CredentialSet bool              `json:"credentialSet"`
	Selections    map[string]string `json:"selections"`
	Prompt        string            `json:"prompt"`
	AspectRatio   string            `json:"aspectRatio"`
	ImageCount    int               `json:"imageCount"`
	Reference     *referenceJSON    `json:"reference,omitempty"`
	Images        []imageJSON       `json:"images"`
	Requested     int               `json:"requested"`
	Failed        int               `json:"failed"`
	Loading       bool              `json:"loading"`
	Epoch         uint64            `json:"epoch"`
	SafetyEngaged bool              `json:"safetyEngaged"`
	Notification  *notificationJSON `json:"notification,omitempty"`
	Version       uint64            `json:"version"`
}

type wsMessage struct {
	Type  string    `json:"type"`
	State stateJSON `json:"state"`
}

type downloadJSON struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	DataURL  string `json:"dataUrl"`
}

func toState(v studio.View) stateJSON {
	out := stateJSON{
		CredentialSet: v.CredentialSet,
		Selections:    v.Selections,
		Prompt:        v.Prompt,
		AspectRatio:   v.Output.AspectRatio,
		ImageCount:    v.Output.Count,
		Images:        make([]imageJSON, 0, len(v.Images)),
		Requested:     v.Requested,
		Failed:        v.Failed,
		Loading:       v.Loading,
		Epoch:         v.Epoch,
		SafetyEngaged: v.SafetyEngaged,
		Version:       v.Version,
	}
	if v.Reference != nil {
		out.Reference = &referenceJSON{
			Name:     v.Reference.Name,
			MIMEType: v.Reference.MIMEType,
			Width:    v.Reference.Width,
			Height:   v.Reference.Height,
			URL:      "/api/reference",
		}
	}
	for i, img := range v.Images {
		out.Images = append(out.Images, imageJSON{
			Index:    i,
			MIMEType: img.MIMEType,
			URL:      "/api/images/" + strconv.Itoa(i),
		})
	}
	if n := v.Notification; n != nil {
		out.Notification = &notificationJSON{
			Seq:     n.Seq,
			Kind:    string(n.Kind),
			Code:    n.Code,
			Message: n.Message,
			TTLMs:   n.TTL.Milliseconds(),
		}
	}
	return out
}

func toCategories(categories []catalog.Category) []categoryJSON {
	out := make([]categoryJSON, 0, len(categories))
	for _, c := range categories {
		cj := categoryJSON{ID: c.ID, Label: c.Label, Options: make([]optionJSON, 0, len(c.Options))}
		for _, o := range c.Options {
			cj.Options = append(cj.Options, optionJSON{ID: o.ID, Label: o.Label})
		}
		out = append(out, cj)
	}
	return out
}

func toDownloads(ds []studio.Download) []downloadJSON {
	out := make([]downloadJSON, 0, len(ds))
	for _, d := range ds {
		out = append(out, downloadJSON{
			Filename: d.Filename,
			MIMEType: d.MIMEType,
			DataURL:  refimage.DataURL(d.MIMEType, d.Data),
		})
	}
	return out
}
