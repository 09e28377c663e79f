// Package pac renders the proxy auto-configuration script served to browsers.
//
// An Artifact is addressed by the SHA-256 of its host tokens only, so the
// same sorted host list always produces the same hash and body.
package pac

import (
	"crypto/sha256"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// ContentType is the MIME type browsers expect for PAC files.
const ContentType = "application/x-ns-proxy-autoconfig"

// ProxyLine is the fixed proxy directive returned for whitelisted hosts.
const ProxyLine = `var __PROXY__ = "SOCKS5 127.0.0.1:1080; SOCKS 127.0.0.1:1080; DIRECT;";` + "\n"

const hostsPrefix = "var __HOSTS__ = ["

//go:embed pac.js
var script string

// Artifact is an immutable generated PAC file.
type Artifact struct {
	Hash string `json:"hash"`
	Body string `json:"-"`
}

// Generate renders the PAC file for hosts. hosts must already be sorted
// ascending and free of duplicates; Generate does not canonicalise them.
func Generate(hosts []string) Artifact {
	digest := sha256.New()
	var list strings.Builder
	for _, h := range hosts {
		tok := token(h)
		digest.Write([]byte(tok))
		list.WriteString(tok)
	}

	var b strings.Builder
	b.Grow(len(hostsPrefix) + list.Len() + 3 + len(ProxyLine) + len(script))
	b.WriteString(hostsPrefix)
	b.WriteString(strings.TrimSuffix(list.String(), ","))
	b.WriteString("];\n")
	b.WriteString(ProxyLine)
	b.WriteString(script)

	return Artifact{
		Hash: base64.RawURLEncoding.EncodeToString(digest.Sum(nil)),
		Body: b.String(),
	}
}

// token renders one host as a quoted, comma-terminated list element.
func token(host string) string {
	q, err := json.Marshal(host)
	if err != nil {
		// strings always marshal
		panic(err)
	}
	return string(q) + ","
}
