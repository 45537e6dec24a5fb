package linkhydrate

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"net/http"
	"time"
)

// Version é a versão do script exposta em window.ISW_SSO.version.
const Version = "1.4.0"

//go:embed assets/isw-sso.js
var assets embed.FS

var script = mustLoadScript()

func mustLoadScript() []byte {
	raw, err := assets.ReadFile("assets/isw-sso.js")
	if err != nil {
		panic(err)
	}
	return bytes.ReplaceAll(raw, []byte("__ISW_SSO_VERSION__"), []byte(Version))
}

// Script devolve o conteúdo do isw-sso.js.
func Script() []byte {
	return bytes.Clone(script)
}

// ScriptHandler serve o isw-sso.js com ETag.
func ScriptHandler() http.Handler {
	sum := sha256.Sum256(script)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`
	modTime := time.Now()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("ETag", etag)
		http.ServeContent(w, r, "isw-sso.js", modTime, bytes.NewReader(script))
	})
}
