package mcpserver

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/template"

	"mcpgateway/internal/api"

	"github.com/Masterminds/sprig/v3"
)

// LookupFunc resolves a secret reference. os.LookupEnv is the default.
type LookupFunc func(key string) (string, bool)

// Renderer substitutes secret references in connection configs. Two forms
// are accepted: ${VAR} (and $VAR) expansion and sprig templates such as
// {{ env "VAR" | trim }}. Unset variables are an error so that a missing
// secret fails the connect instead of sending an empty credential.
type Renderer struct {
	lookup LookupFunc
}

// NewRenderer creates a renderer. A nil lookup uses the process environment.
func NewRenderer(lookup LookupFunc) *Renderer {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Renderer{lookup: lookup}
}

// Render returns a copy of cfg with every string value resolved.
func (r *Renderer) Render(cfg api.ConnectionConfig) (api.ConnectionConfig, error) {
	out, _, err := r.RenderSecrets(cfg)
	return out, err
}

// RenderSecrets is Render that also returns the values substituted into
// the config, so that errors carrying rendered text can be scrubbed.
func (r *Renderer) RenderSecrets(cfg api.ConnectionConfig) (api.ConnectionConfig, Secrets, error) {
	p := &renderPass{base: r.lookup}
	out := cfg.Clone()
	var err error

	if out.Command, err = p.value("command", out.Command); err != nil {
		return out, p.secrets, err
	}
	for i, a := range out.Args {
		if out.Args[i], err = p.value("args", a); err != nil {
			return out, p.secrets, err
		}
	}
	for k, v := range out.Env {
		if out.Env[k], err = p.value("env."+k, v); err != nil {
			return out, p.secrets, err
		}
	}
	if out.URL, err = p.value("url", out.URL); err != nil {
		return out, p.secrets, err
	}
	if out.BaseURL, err = p.value("base_url", out.BaseURL); err != nil {
		return out, p.secrets, err
	}
	for k, v := range out.Headers {
		if out.Headers[k], err = p.value("headers."+k, v); err != nil {
			return out, p.secrets, err
		}
	}
	if out.OAuth != nil {
		if out.OAuth.TokenURL, err = p.value("oauth.token_url", out.OAuth.TokenURL); err != nil {
			return out, p.secrets, err
		}
		if out.OAuth.ClientID, err = p.value("oauth.client_id", out.OAuth.ClientID); err != nil {
			return out, p.secrets, err
		}
		if out.OAuth.ClientSecret, err = p.value("oauth.client_secret", out.OAuth.ClientSecret); err != nil {
			return out, p.secrets, err
		}
		// a literal client secret is as sensitive as a substituted one
		p.secrets = append(p.secrets, out.OAuth.ClientSecret)
	}
	return out, p.secrets, nil
}

// RenderString resolves a single value, such as a health check URL.
func (r *Renderer) RenderString(field, v string) (string, Secrets, error) {
	p := &renderPass{base: r.lookup}
	out, err := p.value(field, v)
	return out, p.secrets, err
}

// renderPass resolves the values of one config and records every value
// returned by the lookup.
type renderPass struct {
	base    LookupFunc
	secrets Secrets
}

func (p *renderPass) lookup(key string) (string, bool) {
	val, ok := p.base(key)
	if ok && val != "" {
		p.secrets = append(p.secrets, val)
	}
	return val, ok
}

func (p *renderPass) value(field, v string) (string, error) {
	if strings.Contains(v, "{{") {
		return p.template(field, v)
	}
	if !strings.Contains(v, "$") {
		return v, nil
	}

	var missing []string
	expanded := os.Expand(v, func(key string) string {
		val, ok := p.lookup(key)
		if !ok {
			missing = append(missing, key)
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s references unset variable(s) %s", field, strings.Join(missing, ", "))
	}
	return expanded, nil
}

func (p *renderPass) template(field, v string) (string, error) {
	funcs := sprig.TxtFuncMap()
	// override sprig's env so that the lookup is injectable and strict
	funcs["env"] = func(key string) (string, error) {
		val, ok := p.lookup(key)
		if !ok {
			return "", fmt.Errorf("variable %s is not set", key)
		}
		return val, nil
	}

	tmpl, err := template.New(field).Option("missingkey=error").Funcs(funcs).Parse(v)
	if err != nil {
		return "", fmt.Errorf("%s: invalid template: %w", field, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return buf.String(), nil
}

// minSecretLen skips values too short to scrub without mangling unrelated
// text.
const minSecretLen = 4

// Secrets are values substituted into a rendered config.
type Secrets []string

// Scrub returns err with every secret, raw or URL-escaped, replaced by
// api.RedactedValue. The original error stays reachable through Unwrap.
func (s Secrets) Scrub(err error) error {
	if err == nil || len(s) == 0 {
		return err
	}
	values := make([]string, 0, len(s)*2)
	for _, v := range s {
		if len(v) < minSecretLen {
			continue
		}
		values = append(values, v)
		if q := url.QueryEscape(v); q != v {
			values = append(values, q)
		}
		if q := url.PathEscape(v); q != v {
			values = append(values, q)
		}
	}
	// longest first so that a secret containing another is replaced whole
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })

	msg := err.Error()
	scrubbed := msg
	for _, v := range values {
		scrubbed = strings.ReplaceAll(scrubbed, v, api.RedactedValue)
	}
	if scrubbed == msg {
		return err
	}
	return &scrubbedError{msg: scrubbed, err: err}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }

func (e *scrubbedError) Unwrap() error { return e.err }
