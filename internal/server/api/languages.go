package api

import (
	"net/http"

	"github.com/signflow/signflow/internal/config"
)

// LanguagesHandler reports the supported languages and whether their
// configurations load.
type LanguagesHandler struct {
	languages []string
	load      func(code string) (*config.Language, error)
}

// NewLanguagesHandler creates a LanguagesHandler.
func NewLanguagesHandler(languages []string, load func(code string) (*config.Language, error)) *LanguagesHandler {
	return &LanguagesHandler{languages: languages, load: load}
}

type languageResponse struct {
	Code          string  `json:"code"`
	Available     bool    `json:"available"`
	Error         string  `json:"error,omitempty"`
	ModelPath     string  `json:"model_path,omitempty"`
	WindowSize    int     `json:"window_size,omitempty"`
	Stride        int     `json:"stride,omitempty"`
	FrameInterval int     `json:"frame_interval,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
	Classes       int     `json:"classes,omitempty"`
}

type listLanguagesResponse struct {
	Languages []languageResponse `json:"languages"`
}

// ServeHTTP handles GET /api/languages.
func (h *LanguagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := listLanguagesResponse{
		Languages: make([]languageResponse, 0, len(h.languages)),
	}
	for _, code := range h.languages {
		response.Languages = append(response.Languages, h.describe(code))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *LanguagesHandler) describe(code string) languageResponse {
	lang, err := h.load(code)
	if err != nil {
		return languageResponse{Code: code, Error: err.Error()}
	}
	return languageResponse{
		Code:          code,
		Available:     true,
		ModelPath:     lang.ModelPath,
		WindowSize:    lang.WindowSize,
		Stride:        lang.EffectiveStride(),
		FrameInterval: lang.FrameInterval,
		Threshold:     lang.Threshold,
		Classes:       len(lang.Labels),
	}
}
