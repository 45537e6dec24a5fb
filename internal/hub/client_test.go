package hub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T, status int, body string, seen *url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, DefaultValidatePath, r.URL.Path)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if seen != nil {
			*seen, err = url.ParseQuery(string(raw))
			require.NoError(t, err)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		ok     bool
		err    error
	}{
		{name: "liberado", status: http.StatusOK, body: "liberado", ok: true},
		{name: "liberado com espacos", status: http.StatusOK, body: "  liberado\r\n", ok: true},
		{name: "negado", status: http.StatusOK, body: "negado", err: ErrRejected},
		{name: "maiusculo nao conta", status: http.StatusOK, body: "LIBERADO", err: ErrRejected},
		{name: "vazio", status: http.StatusOK, body: "", err: ErrRejected},
		{name: "json", status: http.StatusOK, body: `{"status":"liberado"}`, err: ErrRejected},
		{name: "erro do hub", status: http.StatusInternalServerError, body: "liberado"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var seen url.Values
			srv := newHub(t, tt.status, tt.body, &seen)

			client, err := New(Config{BaseURL: srv.URL + "/"})
			require.NoError(t, err)

			ok, err := client.Validate(context.Background(), "ab+c/d==")
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				if tt.err != nil {
					require.ErrorIs(t, err, tt.err)
				}
			}
			require.Equal(t, "ab+c/d==", seen.Get("token"))
		})
	}
}

func TestValidateNetworkErrorFailsClosed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(Config{BaseURL: base})
	require.NoError(t, err)

	ok, err := client.Validate(context.Background(), "token")
	require.False(t, ok)
	require.Error(t, err)
}

func TestValidateTimeoutFailsClosed(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = io.WriteString(w, "liberado")
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	ok, err := client.Validate(context.Background(), "token")
	require.False(t, ok)
	require.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "nao e url"})
	require.Error(t, err)

	c, err := New(Config{BaseURL: "https://hub.example", ValidatePath: "check.php"})
	require.NoError(t, err)
	require.Equal(t, "https://hub.example/check.php", c.validateURL)
}
