package http

import (
	_ "embed"
	"net/http"
)

var (
	//go:embed openapi.yaml
	openAPIDocument []byte
)

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}
