package bridge

import (
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed renderer.html
var rendererHTML string

var rendererTemplate = template.Must(template.New("renderer").Parse(rendererHTML))

// RendererPage serves the renderer document. componentURL, when set, is
// loaded as the lyrics web component module.
func RendererPage(componentURL string) http.Handler {
	data := struct{ ComponentURL string }{componentURL}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := rendererTemplate.Execute(w, data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
