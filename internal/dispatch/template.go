package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer renders Liquid message templates with per-template caching.
// Missing variables render as empty strings, which is the behavior we want
// for production sends: a half-personalized message beats a dropped one.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a template renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Parse compiles a template string and returns any syntax error. Used to
// validate campaign templates before they are scheduled. Liquid treats an
// unclosed delimiter as literal text, so balance is checked explicitly.
func (r *Renderer) Parse(templateStr string) error {
	if err := checkDelimiters(templateStr); err != nil {
		return err
	}
	_, err := r.engine.ParseString(templateStr)
	return err
}

func checkDelimiters(s string) error {
	for _, d := range []struct{ open, close string }{
		{"{{", "}}"},
		{"{%", "%}"},
	} {
		if strings.Count(s, d.open) != strings.Count(s, d.close) {
			return fmt.Errorf("unbalanced %s %s delimiters", d.open, d.close)
		}
	}
	return nil
}

// Render processes a template against the given variables. cacheKey, when
// non-empty, caches the parsed template so a campaign's body is compiled
// once rather than once per recipient.
func (r *Renderer) Render(cacheKey, templateStr string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}

	tpl, err := r.engine.ParseString(templateStr)
	if err != nil {
		return "", err
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, tpl)
	}
	return tpl.RenderString(vars)
}
