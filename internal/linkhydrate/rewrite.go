package linkhydrate

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	tokenParam = "token"
	tsParam    = "ts"
)

// rewriteHref coloca token e ts na query do href. Só os pares token e ts são tocados: os
// demais mantêm ordem e codificação originais. changed=false quando o href já carrega os
// mesmos valores.
func rewriteHref(href, token string, now time.Time) (out string, changed bool, err error) {
	u, err := url.Parse(href)
	if err != nil {
		return href, false, err
	}

	ts := strconv.FormatInt(now.Unix(), 10)
	pairs := splitQuery(u.RawQuery)
	if v, ok := lookupPair(pairs, tsParam); ok && v == ts {
		if v, ok := lookupPair(pairs, tokenParam); ok && v == token {
			return href, false, nil
		}
	}

	pairs = setPair(pairs, tokenParam, token)
	pairs = setPair(pairs, tsParam, ts)
	u.RawQuery = strings.Join(pairs, "&")

	return u.String(), true, nil
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "&")
}

func pairKey(pair string) (key, value string) {
	k, v, _ := strings.Cut(pair, "=")
	if uk, err := url.QueryUnescape(k); err == nil {
		k = uk
	}
	if uv, err := url.QueryUnescape(v); err == nil {
		v = uv
	}
	return k, v
}

func lookupPair(pairs []string, key string) (string, bool) {
	for _, p := range pairs {
		if k, v := pairKey(p); k == key {
			return v, true
		}
	}
	return "", false
}

// setPair troca a primeira ocorrência de key no lugar e descarta repetições; sem ocorrência,
// acrescenta no fim.
func setPair(pairs []string, key, value string) []string {
	encoded := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	out := make([]string, 0, len(pairs)+1)
	found := false
	for _, p := range pairs {
		if k, _ := pairKey(p); k == key {
			if !found {
				out = append(out, encoded)
				found = true
			}
			continue
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, encoded)
	}
	return out
}
