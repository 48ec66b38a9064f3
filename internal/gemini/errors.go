package gemini

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"ai-profile-studio/internal/generation"
)

// classify maps Gemini API failures onto the generation error kinds. Errors
// that carry no API status fall through to generation.Classify.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return generation.Classify(err)
		}
		apiErr = *apiErrPtr
	}

	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = err.Error()
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Status == "RESOURCE_EXHAUSTED":
		return &generation.Error{Kind: generation.KindQuotaExceeded, Message: msg, Err: err}
	case apiErr.Code == http.StatusUnauthorized,
		strings.Contains(msg, "API key not valid"),
		strings.Contains(apiErr.Status, "API_KEY_INVALID"):
		return &generation.Error{Kind: generation.KindInvalidCredential, Message: msg, Err: err}
	}
	return &generation.Error{Kind: generation.KindUnknown, Message: msg, Err: err}
}
