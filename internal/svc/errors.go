package svc

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/aaa/glog"
	"github.com/informatics-isi-edu/hatrac/internal/cmn"
	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

// writeErr is the single point where any error becomes an HTTP
// response (§4.8), mirroring the teacher's p.writeErr(w, r, err,
// errCode) boundary: every handler funnels here instead of writing
// status codes itself.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	he := herr.As(err)
	if he.Kind == herr.KindInternal {
		glog.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		glog.V(glog.SmoduleSvc).Infof("%s %s: %d %v", r.Method, r.URL.Path, he.StatusCode(), err)
	}
	renderError(w, r, he)
}

// renderError negotiates against configured error_templates (§4.8,
// §6): keyed by (code, content-type), with a "default" fallback and a
// legacy "<code>_html"/"<code>_plain" shorthand.
func renderError(w http.ResponseWriter, r *http.Request, he *herr.Error) {
	code := he.StatusCode()
	templates := cmn.GCO.Get().ErrorTemplates
	ctype := negotiateErrorContentType(r, templates, code)

	body := he.Description
	if tmpl, ok := lookupTemplate(templates, code, ctype); ok {
		body = interpolate(tmpl, code, he.HTTPTitle(), he.Description)
	}
	w.Header().Set("Content-Type", ctype)
	w.WriteHeader(code)
	fmt.Fprint(w, body)
}

func lookupTemplate(templates cmn.ErrorTemplates, code int, ctype string) (string, bool) {
	if templates == nil {
		return "", false
	}
	byType := templates[strconv.Itoa(code)]
	if tmpl, ok := byType[ctype]; ok {
		return tmpl, true
	}
	// legacy shorthand: "<code>_html" / "<code>_plain" keys instead of a
	// nested content-type map (§4.8 "A legacy shorthand is accepted").
	suffix := "_plain"
	if strings.Contains(ctype, "html") {
		suffix = "_html"
	}
	if tmpl, ok := templates[strconv.Itoa(code)+suffix]["default"]; ok {
		return tmpl, true
	}
	if tmpl, ok := byType["default"]; ok {
		return tmpl, true
	}
	return "", false
}

func negotiateErrorContentType(r *http.Request, templates cmn.ErrorTemplates, code int) string {
	accept := r.Header.Get("Accept")
	candidates := strings.Split(accept, ",")
	byType, ok := templates[strconv.Itoa(code)]
	for _, c := range candidates {
		c = strings.TrimSpace(strings.SplitN(c, ";", 2)[0])
		if c == "" || c == "*/*" {
			continue
		}
		if ok {
			if _, has := byType[c]; has {
				return c
			}
		}
		if c == "text/html" || c == "text/plain" {
			return c
		}
	}
	return "text/plain"
}

func interpolate(tmpl string, code int, title, description string) string {
	out := strings.ReplaceAll(tmpl, "{code}", strconv.Itoa(code))
	out = strings.ReplaceAll(out, "{title}", title)
	out = strings.ReplaceAll(out, "{description}", description)
	return out
}
