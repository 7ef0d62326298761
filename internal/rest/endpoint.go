package rest

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint describes one route template of the chat service REST API.
//
// Some endpoints declare a major parameter: the URL parameter at that position
// (e.g. a channel or server ID) scopes the endpoint's rate-limit bucket, so
// calls for different IDs are limited independently. Endpoints without a major
// parameter share a single bucket across all parameter values.
type Endpoint struct {
	template      string
	majorParamPos int // -1 when the endpoint has no major parameter
}

// Endpoints of the chat service REST API used by this client.
var (
	EndpointGateway         = Endpoint{template: "/gateway", majorParamPos: -1}
	EndpointSelf            = Endpoint{template: "/users/@me", majorParamPos: -1}
	EndpointUser            = Endpoint{template: "/users/%s", majorParamPos: -1}
	EndpointUserChannel     = Endpoint{template: "/users/@me/channels", majorParamPos: -1}
	EndpointServer          = Endpoint{template: "/guilds/%s", majorParamPos: 0}
	EndpointServerChannel   = Endpoint{template: "/guilds/%s/channels", majorParamPos: 0}
	EndpointServerMember    = Endpoint{template: "/guilds/%s/members/%s", majorParamPos: 0}
	EndpointChannel         = Endpoint{template: "/channels/%s", majorParamPos: 0}
	EndpointMessage         = Endpoint{template: "/channels/%s/messages", majorParamPos: 0}
	EndpointMessageDelete   = Endpoint{template: "/channels/%s/messages/%s", majorParamPos: 0}
	EndpointMessageReaction = Endpoint{template: "/channels/%s/messages/%s/reactions/%s/@me", majorParamPos: 0}
	EndpointChannelTyping   = Endpoint{template: "/channels/%s/typing", majorParamPos: 0}
)

// Template returns the route template, e.g. "/channels/%s/messages".
func (e Endpoint) Template() string {
	return e.template
}

// ParamCount returns the number of URL parameters the template expects.
func (e Endpoint) ParamCount() int {
	return strings.Count(e.template, "%s")
}

// URL builds the full request URL for the given base URL and parameters.
// Parameters are path-escaped.
func (e Endpoint) URL(baseURL string, params ...string) string {
	escaped := make([]any, len(params))
	for i, p := range params {
		escaped[i] = url.PathEscape(p)
	}
	return strings.TrimRight(baseURL, "/") + fmt.Sprintf(e.template, escaped...)
}

// BucketKey derives the rate-limit bucket identity for a call with the given
// parameters. Two requests share a bucket iff their keys are equal. The key
// is a pure function of the endpoint and parameters; no network state is
// involved. When the declared major parameter position is out of range for
// the call, the key degrades to the template alone.
func (e Endpoint) BucketKey(params ...string) string {
	if e.majorParamPos < 0 || e.majorParamPos >= len(params) {
		return e.template
	}
	return e.template + "|" + params[e.majorParamPos]
}
