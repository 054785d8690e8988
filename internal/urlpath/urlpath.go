// Package urlpath implements Hatrac's hierarchical-name URL grammar
// (§4.1): split on unescaped "/", then on a trailing ";<subresource>",
// then split the final segment on ":<version>". Reserved characters are
// "/ : ;"; segment bodies are restricted to the configurable class plus
// percent-encoded UTF-8.
//
// This component has no equivalent in the teacher (aistore addresses
// buckets/objects with a flat two-segment "/v1/objects/<bucket>/<obj>"
// scheme defined by constants, see cmn/urlpaths.go) — Hatrac's grammar is
// bespoke to the hierarchical name model in spec.md §3-4.1, written in
// the teacher's texture: a typed result struct, explicit error returns,
// doc comments on the non-obvious grammar rather than on every field.
package urlpath

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

// Subresource tokens recognized after ";" (§4.1).
const (
	SubVersions = "versions"
	SubMetadata = "metadata"
	SubACL      = "acl"
	SubUpload   = "upload"
)

// Parsed is the decoded shape of a request path below the service prefix.
type Parsed struct {
	Segments []string // decoded namespace/object path segments
	Version  string   // ":<version>" on the last segment, empty if absent
	Sub      string   // subresource token, empty if absent
	SubSel1  string   // subresource first selector (field / access / job-id)
	SubSel2  string   // subresource second selector (entry / chunk-number)
}

var defaultCharClass = regexp.MustCompile(`^[-._~A-Za-z0-9]+$`)

// Parse splits raw (the portion of r.URL.Path after the service prefix,
// still percent-encoded) according to §4.1. charClass is the configured
// allowed_url_char_class; an empty string falls back to the default.
func Parse(raw string, charClass string) (*Parsed, error) {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return &Parsed{Segments: nil}, nil
	}

	segClass := defaultCharClass
	if charClass != "" {
		re, err := regexp.Compile("^[" + charClass + "]+$")
		if err != nil {
			return nil, herr.Internal(err, "invalid allowed_url_char_class")
		}
		segClass = re
	}

	rawSegs := splitUnescaped(raw, '/')
	if len(rawSegs) == 0 {
		return nil, herr.BadRequest("empty path")
	}

	p := &Parsed{}
	last := rawSegs[len(rawSegs)-1]
	rawSegs = rawSegs[:len(rawSegs)-1]

	// Split the last raw segment on ";" to isolate a trailing subresource
	// (only the final path segment may carry one, per §4.1).
	if semi := strings.IndexByte(last, ';'); semi >= 0 {
		subPart := last[semi+1:]
		last = last[:semi]
		subSegs := splitUnescaped(subPart, '/')
		if len(subSegs) == 0 {
			return nil, herr.BadRequest("empty subresource after ';'")
		}
		p.Sub = subSegs[0]
		if !validSub(p.Sub) {
			return nil, herr.BadRequest("unknown subresource %q", p.Sub)
		}
		for i, sel := range []*string{&p.SubSel1, &p.SubSel2} {
			if len(subSegs) > i+1 {
				dec, err := decodeSegment(subSegs[i+1])
				if err != nil {
					return nil, herr.BadRequest("invalid subresource selector %q: %v", subSegs[i+1], err)
				}
				*sel = dec
			}
		}
		if len(subSegs) > 3 {
			return nil, herr.BadRequest("too many subresource selectors")
		}
		// metadata/acl carry a single "/"-joined selector chain only one
		// level deep beyond the token itself, except acl/<access>/<entry>
		// (two levels) — already captured above.
	}

	// Split the (now subresource-free) last segment on ":" for the
	// version qualifier (§3 Version, §4.1).
	if colon := strings.IndexByte(last, ':'); colon >= 0 {
		p.Version = last[colon+1:]
		last = last[:colon]
		if p.Version == "" {
			return nil, herr.BadRequest("empty version qualifier after ':'")
		}
	}
	rawSegs = append(rawSegs, last)

	// the class governs a segment's literal characters; "%XX" escapes of
	// any octet are always allowed (§4.1 "percent-encoded UTF-8").
	pctEscape := regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	for _, rs := range rawSegs {
		dec, err := decodeSegment(rs)
		if err != nil {
			return nil, herr.BadRequest("invalid path segment %q: %v", rs, err)
		}
		if dec == "." || dec == ".." {
			return nil, herr.BadRequest("illegal path segment %q", dec)
		}
		if dec == "" {
			return nil, herr.BadRequest("empty path segment")
		}
		if lit := pctEscape.ReplaceAllString(rs, ""); lit != "" {
			if err := validateSegment(lit, segClass); err != nil {
				return nil, herr.BadRequest("illegal characters in segment %q: %v", dec, err)
			}
		}
		p.Segments = append(p.Segments, dec)
	}
	return p, nil
}

func validSub(tok string) bool {
	switch tok {
	case SubVersions, SubMetadata, SubACL, SubUpload:
		return true
	default:
		return false
	}
}

// splitUnescaped splits s on sep, but never inside a "%XX" escape — since
// percent-encoding only ever encodes single octets, this reduces to a
// plain split: "%2F" bytes never decode to an unescaped literal "/" at
// the point we split, because we split before decoding.
func splitUnescaped(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, string(sep))
}

// decodeSegment percent-decodes a single path segment, accepting encoded
// UTF-8 octets per §4.1 ("percent-encoded UTF-8").
func decodeSegment(s string) (string, error) {
	return url.PathUnescape(s)
}

func validateSegment(s string, class *regexp.Regexp) error {
	if !class.MatchString(s) {
		return fmt.Errorf("characters outside allowed class")
	}
	return nil
}

// Join renders segments back into a request path below the service
// prefix, percent-encoding any reserved or non-class character. Used to
// build Location/Content-Location headers (§4.6) and ACL/metadata URLs.
func Join(prefix string, segments []string, version string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(prefix, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(encodeSegment(s))
	}
	if version != "" {
		b.WriteByte(':')
		b.WriteString(encodeSegment(version))
	}
	return b.String()
}

// JoinSub appends a subresource suffix (";sub[/sel1[/sel2]]") to a path
// already rendered by Join.
func JoinSub(base, sub, sel1, sel2 string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte(';')
	b.WriteString(sub)
	if sel1 != "" {
		b.WriteByte('/')
		b.WriteString(encodeSegment(sel1))
	}
	if sel2 != "" {
		b.WriteByte('/')
		b.WriteString(encodeSegment(sel2))
	}
	return b.String()
}

func encodeSegment(s string) string {
	return url.PathEscape(s)
}
