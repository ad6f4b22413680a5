package http

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/form.html
var templatesFS embed.FS

var formTemplate = template.Must(template.ParseFS(templatesFS, "templates/form.html"))

type formView struct {
	PixKey    string
	MinAmount string
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	view := formView{PixKey: s.creds.PixKey, MinAmount: minCreateAmount.String()}
	if err := formTemplate.Execute(w, view); err != nil {
		s.log.Error().Err(err).Msg("pix: render form")
	}
}
