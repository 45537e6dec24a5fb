package http

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// spaHandler serve o build estático do chat e cai no index.html para rotas do cliente.
type spaHandler struct {
	root  string
	files http.Handler
}

func newSPAHandler(root string) http.Handler {
	if strings.TrimSpace(root) == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, http.StatusNotFound, "não encontrado")
		})
	}
	return &spaHandler{root: root, files: http.FileServer(http.Dir(root))}
}

func (s *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteError(w, http.StatusMethodNotAllowed, "método não permitido")
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if strings.HasPrefix(clean, "/api/") {
		WriteError(w, http.StatusNotFound, "não encontrado")
		return
	}

	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err == nil && !info.IsDir() {
		s.files.ServeHTTP(w, r)
		return
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		WriteError(w, http.StatusInternalServerError, "erro ao ler arquivo")
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(s.root, "index.html"))
}
