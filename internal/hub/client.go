package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultValidatePath é o endpoint do Hub que confirma se o token ainda está liberado.
	DefaultValidatePath = "/isw_api/isw_validar_usuario.php"

	defaultTimeout = 8 * time.Second
	approvedBody   = "liberado"
	maxBodyBytes   = 4 << 10
)

var (
	// ErrRejected indica que o Hub respondeu, mas não liberou o token.
	ErrRejected = errors.New("hub: token não liberado")
)

// Config descreve como alcançar o Hub.
type Config struct {
	BaseURL      string
	ValidatePath string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client consulta o Hub para autorizar tokens de SSO.
type Client struct {
	httpClient  *http.Client
	validateURL string
}

// New cria um cliente com timeout explícito.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("hub: base url obrigatória")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("hub: base url inválida: %w", err)
	}

	path := strings.TrimSpace(cfg.ValidatePath)
	if path == "" {
		path = DefaultValidatePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Client{httpClient: client, validateURL: base + path}, nil
}

// Validate envia o token original (ainda cifrado) ao Hub. Só devolve true quando o corpo da
// resposta, sem espaços, é exatamente "liberado"; qualquer outra situação é recusa.
func (c *Client) Validate(ctx context.Context, rawToken string) (bool, error) {
	form := url.Values{}
	form.Set("token", rawToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("hub: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false, fmt.Errorf("hub: leitura da resposta: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("hub: status %d", resp.StatusCode)
	}

	if strings.TrimSpace(string(body)) != approvedBody {
		return false, ErrRejected
	}
	return true, nil
}
