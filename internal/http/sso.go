package http

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vendaseguro/chatsso/internal/sso"
)

var failurePage = template.Must(template.New("sso-failure").Parse(`<!doctype html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="robots" content="noindex">
<meta http-equiv="refresh" content="0;url={{.URL}}">
<title>Acesso não autorizado</title>
</head>
<body>
<p>{{.Message}}</p>
<p><a href="{{.URL}}">Voltar para o login</a></p>
</body>
</html>
`))

// SSOCallback troca o token do Hub por uma sessão e redireciona para o chat.
func (h *Handler) SSOCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	q := r.URL.Query()
	out, err := h.orchestrator.Exchange(r.Context(), sso.Request{Token: q.Get("token"), TS: q.Get("ts")})
	if err != nil {
		h.writeSSOFailure(w, r, err)
		return
	}

	if out.Grant.Cookie != nil {
		http.SetCookie(w, out.Grant.Cookie)
	}
	http.Redirect(w, r, out.Grant.RedirectURL, http.StatusFound)
	out.MarkRedirected()

	zerolog.Ctx(r.Context()).Debug().Str("stage", string(out.Stage)).Msg("sso: redirecionado")
}

func (h *Handler) writeSSOFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := sso.StatusCode(err)
	message := sso.PublicMessage(err)

	if !acceptsHTML(r) {
		WriteError(w, status, message)
		return
	}

	target := h.cfg.SSO.FailurePath + "?" + url.Values{"sso": {"erro"}}.Encode()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = failurePage.Execute(w, struct {
		URL     string
		Message string
	}{URL: target, Message: "Não foi possível validar seu acesso. Entre novamente pelo portal."})
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
