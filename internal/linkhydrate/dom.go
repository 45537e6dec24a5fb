package linkhydrate

import "time"

// Anchor é o que o motor precisa de um elemento <a>.
type Anchor interface {
	Attr(name string) (string, bool)
	SetAttr(name, value string)
}

// Document devolve as âncoras marcadas com uma chave de destino.
type Document interface {
	Anchors(key string) []Anchor
}

// ClickModifiers descreve o estado do clique.
type ClickModifiers struct {
	Ctrl bool
	Meta bool
}

// ClickDecision diz ao chamador o que fazer com um clique.
type ClickDecision struct {
	PreventDefault bool
	// StopPropagation impede que outros listeners vejam o clique bloqueado antes da hidratação.
	StopPropagation bool
	Navigate        bool
	URL             string
	NewTab          bool
	Delay           time.Duration
}
