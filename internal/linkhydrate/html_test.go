package linkhydrate

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const page = `<!doctype html><html><body>
<a isw_action_link="melhor_produto" href="https://loja.example/p?x=1">produto</a>
<a isw_action_link="experta" href="/experta">experta</a>
<a href="https://fora.example/">fora</a>
</body></html>`

func TestHydrateHTML(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	var out bytes.Buffer
	n, err := HydrateHTML(strings.NewReader(page), &out, Tokens{"melhor_produto": "A&B", "experta": "E1"}, now)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	doc, err := ParseHTML(&out)
	require.NoError(t, err)

	prod := doc.Anchors("melhor_produto")
	require.Len(t, prod, 1)
	href, _ := prod[0].Attr("href")
	q := query(t, href)
	require.Equal(t, "A&B", q.Get("token"))
	require.Equal(t, "1700000000", q.Get("ts"))
	require.Equal(t, "1", q.Get("x"))
	applied, _ := prod[0].Attr(AppliedAttr)
	require.Equal(t, "A&B", applied)

	exp := doc.Anchors("experta")
	require.Len(t, exp, 1)
	href, _ = exp[0].Attr("href")
	require.Equal(t, "/experta?token=E1&ts=1700000000", href)

	require.Contains(t, out.String(), `href="https://fora.example/"`)
}

func TestHydrateHTMLSecondPassSameSecondIsNoop(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	var first, second bytes.Buffer
	_, err := HydrateHTML(strings.NewReader(page), &first, Tokens{"experta": "E1"}, now)
	require.NoError(t, err)

	n, err := HydrateHTML(bytes.NewReader(first.Bytes()), &second, Tokens{"experta": "E1"}, now)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, first.String(), second.String())
}

func TestScriptHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	ScriptHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/isw-sso.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "javascript")

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "window.ISW_SSO")
	require.Contains(t, string(body), "'"+Version+"'")
	require.NotContains(t, string(body), "__ISW_SSO_VERSION__")
	require.Contains(t, string(body), MarkerAttr)
	require.Contains(t, string(body), AppliedAttr)

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	req := httptest.NewRequest(http.MethodGet, "/static/isw-sso.js", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	ScriptHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)

	require.Equal(t, body, Script())
}
