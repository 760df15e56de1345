package api

import (
	"net/http"

	"github.com/example/kiro-claude-bridge/internal/translator"
)

type modelsResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

type modelObject struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	data := make([]modelObject, 0, len(translator.SupportedModels))
	for _, id := range translator.SupportedModels {
		data = append(data, modelObject{ID: id, Object: "model"})
	}
	writeJSON(w, http.StatusOK, modelsResponse{Object: "list", Data: data})
}
