package humastar

import "strings"

// Action is a state-dependent hypermedia action link.
// Response bodies implement the Actor interface to emit conditional
// RFC 8288 Link headers with method, title, and schema extension parameters.
//
// Example Link header output:
//
//	</api/v1/map/stops/toggle>; rel="toggle-stops"; method="POST"; title="Show or hide bus stops"
type Action struct {
	Rel    string // custom rel, e.g. "toggle-stops"
	Href   string // target URL
	Method string // HTTP method: POST, PUT, DELETE, etc.
	Title  string // optional human-readable label
	Schema string // optional JSON Schema URL for the request body
}

// Actor is implemented by response bodies that provide state-dependent actions.
type Actor interface {
	Actions() []Action
}

// Post is a bodyless POST action.
func Post(rel, href, title string) Action {
	return Action{Rel: rel, Href: href, Method: "POST", Title: title}
}

// Put is a PUT action whose body is described by schema.
func Put(rel, href, title, schema string) Action {
	return Action{Rel: rel, Href: href, Method: "PUT", Title: title, Schema: schema}
}

// LinkHeader formats the action as an RFC 8288 Link header value
// with method and title extension parameters.
func (a Action) LinkHeader() string {
	var b strings.Builder
	b.WriteString("<" + a.Href + `>; rel="` + a.Rel + `"`)
	param := func(k, v string) {
		if v != "" {
			b.WriteString("; " + k + `="` + v + `"`)
		}
	}
	param("method", a.Method)
	param("title", a.Title)
	param("schema", a.Schema)
	return b.String()
}
