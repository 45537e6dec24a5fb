package linkhydrate

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	// MarkerAttr marca as âncoras que recebem token.
	MarkerAttr = "isw_action_link"
	// AppliedAttr guarda o token já aplicado no elemento.
	AppliedAttr = "data-isw-token"

	defaultDebounce = 100 * time.Millisecond
	clickDelay      = time.Millisecond
)

// Tokens mapeia chave de destino para o token daquele destino.
type Tokens map[string]string

// Option ajusta o Engine.
type Option func(*Engine)

// WithClock troca o relógio usado no ts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithErrorHook recebe os hrefs que não puderam ser reescritos. Sem hook a falha é silenciosa
// e o link fica como estava.
func WithErrorHook(fn func(href string, err error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithDebounce altera a janela de agrupamento das mutações.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// Engine mantém os links marcados de um documento com token e ts atuais.
// Antes do primeiro Rehydrate os cliques em links marcados são bloqueados.
type Engine struct {
	mu       sync.Mutex
	doc      Document
	tokens   Tokens
	keys     []string
	hydrated bool
	closed   bool

	now      func() time.Time
	onError  func(href string, err error)
	debounce time.Duration
	timer    *time.Timer
	pending  []Anchor
}

// Init cria o motor para o documento. A primeira passada acontece em Rehydrate.
func Init(doc Document, tokens Tokens, opts ...Option) *Engine {
	e := &Engine{
		doc:      doc,
		now:      time.Now,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.setTokens(tokens)
	return e
}

// Tokens devolve uma cópia dos tokens em uso (só os não vazios).
func (e *Engine) Tokens() Tokens {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Assign(e.tokens)
}

// Hydrated informa se a primeira passada completa já ocorreu.
func (e *Engine) Hydrated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrated
}

// Rehydrate percorre todas as chaves configuradas e devolve quantos hrefs mudaram.
func (e *Engine) Rehydrate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}

	now := e.now()
	written := 0
	for _, key := range e.keys {
		for _, a := range e.doc.Anchors(key) {
			if e.hydrateLocked(a, now) {
				written++
			}
		}
	}
	e.hydrated = true
	return written
}

// HandleHover revalida o link sob o ponteiro.
func (e *Engine) HandleHover(a Anchor) {
	e.revalidate(a)
}

// HandleFocus revalida o link que recebeu foco.
func (e *Engine) HandleFocus(a Anchor) {
	e.revalidate(a)
}

// HandleClick decide o que fazer com o clique. Cliques fora de links marcados seguem o fluxo
// normal do navegador.
func (e *Engine) HandleClick(a Anchor, mods ClickModifiers) ClickDecision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a == nil || e.closed || !isMarked(a) {
		return ClickDecision{}
	}
	if !e.hydrated {
		return ClickDecision{PreventDefault: true, StopPropagation: true}
	}

	e.hydrateLocked(a, e.now())
	href, _ := a.Attr("href")
	target, _ := a.Attr("target")

	return ClickDecision{
		PreventDefault: true,
		Navigate:       href != "",
		URL:            href,
		NewTab:         strings.EqualFold(target, "_blank") || mods.Ctrl || mods.Meta,
		Delay:          clickDelay,
	}
}

// HandleMutation agenda a hidratação das âncoras inseridas, agrupando rajadas de mutação.
func (e *Engine) HandleMutation(added []Anchor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.hydrated {
		return
	}

	e.pending = append(e.pending, lo.Filter(added, func(a Anchor, _ int) bool { return a != nil && isMarked(a) })...)
	if len(e.pending) == 0 {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, e.flushMutations)
}

// HandleVisibility refaz a passada completa quando a aba volta ao primeiro plano.
func (e *Engine) HandleVisibility(visible bool) {
	if !visible || !e.Hydrated() {
		return
	}
	e.Rehydrate()
}

// Teardown encerra o motor; chamadas posteriores não fazem nada.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.pending = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) flushMutations() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	now := e.now()
	for _, a := range e.pending {
		e.hydrateLocked(a, now)
	}
	e.pending = nil
	e.timer = nil
}

func (e *Engine) revalidate(a Anchor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a == nil || e.closed || !e.hydrated || !isMarked(a) {
		return
	}
	e.hydrateLocked(a, e.now())
}

// hydrateLocked aplica token e ts numa âncora. Quem decide é o href: data-isw-token pode ter
// sobrado de um re-render que trocou o href.
func (e *Engine) hydrateLocked(a Anchor, now time.Time) bool {
	key, _ := a.Attr(MarkerAttr)
	token := e.tokens[key]
	if token == "" {
		return false
	}
	href, ok := a.Attr("href")
	if !ok {
		return false
	}

	applied, _ := a.Attr(AppliedAttr)
	out, changed, err := rewriteHref(href, token, now)
	if err != nil {
		if e.onError != nil {
			e.onError(href, err)
		}
		return false
	}
	if changed {
		a.SetAttr("href", out)
	}
	if applied != token {
		a.SetAttr(AppliedAttr, token)
	}
	return changed
}

func (e *Engine) setTokens(tokens Tokens) {
	e.tokens = lo.PickBy(tokens, func(_ string, v string) bool {
		return strings.TrimSpace(v) != ""
	})
	e.keys = lo.Keys(e.tokens)
	slices.Sort(e.keys)
}

func isMarked(a Anchor) bool {
	key, ok := a.Attr(MarkerAttr)
	return ok && key != ""
}
