package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Links holds RFC 8288 link headers derived from the OpenAPI document,
// keyed by operation path.
type Links struct {
	entry  string
	byPath map[string][]string
}

// AutoLinks walks the OpenAPI spec and derives hypermedia links. entry is the
// API's entry point. Operations tagged with any of skip (SSE streams and
// browser callbacks) are left out. Call after all routes are registered.
func AutoLinks(api huma.API, entry string, skip ...string) *Links {
	oapi := api.OpenAPI()
	l := &Links{entry: entry, byPath: map[string][]string{}}

	type pathInfo struct {
		path string
		tags []string
	}
	var gets []pathInfo
	for p, pi := range oapi.Paths {
		tags := primaryTags(pi)
		if slices.ContainsFunc(skip, func(t string) bool { return slices.Contains(tags, t) }) {
			continue
		}
		if pi.Get != nil {
			gets = append(gets, pathInfo{path: p, tags: tags})
		}
	}
	slices.SortFunc(gets, func(a, b pathInfo) int { return strings.Compare(a.path, b.path) })

	// 1. Nested resources link up to their parent.
	for _, g := range gets {
		parent := path.Dir(g.path)
		if pi, ok := oapi.Paths[parent]; ok && pi.Get != nil {
			l.add(g.path, parent, "up")
		} else if g.path != entry {
			l.add(g.path, entry, "up")
		}
	}

	// 2. Cross-link readable resources sharing a tag.
	for i, a := range gets {
		for j, b := range gets {
			if i != j && sharedTag(a.tags, b.tags) != "" {
				l.add(a.path, b.path, lastSegment(b.path))
			}
		}
	}

	// 3. Entry point links to every readable resource plus discovery rels.
	for _, g := range gets {
		if g.path != entry {
			l.add(entry, g.path, lastSegment(g.path))
		}
	}
	l.add(entry, "/openapi.json", "describedby")
	l.add(entry, "/openapi.json", "service-desc")
	l.add(entry, "/docs", "service-doc")

	// 4. describedby per resource: the JSON Schema of its GET response.
	for _, g := range gets {
		if ref := getResponseSchemaRef(oapi.Paths[g.path]); ref != "" {
			l.add(g.path, "/openapi.json#/components/schemas/"+ref, "describedby")
		}
	}

	// 5. Document the relationships on the operations themselves.
	for p, pi := range oapi.Paths {
		if headers, ok := l.byPath[p]; ok && pi.Get != nil {
			injectResponseLinks(pi.Get, headers)
		}
	}
	return l
}

// For returns the link headers for an operation path.
func (l *Links) For(p string) []string {
	if l == nil {
		return nil
	}
	return l.byPath[p]
}

// Root returns the entry point's links, for non-Huma handlers.
func (l *Links) Root() []string {
	if l == nil {
		return nil
	}
	return l.byPath[l.entry]
}

// Transformer returns a Huma Transformer that injects the derived links,
// pagination links and state-dependent action links at runtime. A nil
// receiver injects only the body-derived links.
func (l *Links) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}
		for _, link := range l.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func (l *Links) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(l.byPath[from], val) {
		l.byPath[from] = append(l.byPath[from], val)
	}
}

func primaryTags(pi *huma.PathItem) []string {
	for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
		if op != nil && len(op.Tags) > 0 {
			return op.Tags
		}
	}
	return nil
}

func sharedTag(a, b []string) string {
	for _, at := range a {
		if slices.Contains(b, at) {
			return at
		}
	}
	return ""
}

func lastSegment(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}

// injectResponseLinks records headers as OpenAPI Link objects on the
// operation's success response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func getResponseSchemaRef(pi *huma.PathItem) string {
	if pi.Get == nil {
		return ""
	}
	for code, resp := range pi.Get.Responses {
		if !strings.HasPrefix(code, "2") || resp.Content == nil {
			continue
		}
		for _, mt := range resp.Content {
			if mt.Schema != nil && mt.Schema.Ref != "" {
				return lastSegment(mt.Schema.Ref)
			}
		}
	}
	return ""
}

// parseLinkHeader splits `<url>; rel="name"`.
func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if r, ok := strings.CutPrefix(params, `rel="`); ok {
		rel = strings.TrimSuffix(r, `"`)
	}
	return rel, href
}
