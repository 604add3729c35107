package feed

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/sakif/jokebox/internal/auth"
)

// ShapeTable is the only table the shape proxy will stream.
const ShapeTable = "jokes"

// ExposedHeaders are the response headers a browser sync client must be
// allowed to read across origins.
var ExposedHeaders = []string{
	"electric-offset",
	"electric-handle",
	"electric-schema",
	"electric-cursor",
	"electric-up-to-date",
}

// ElectricProxy forwards shape requests to ElectricSQL on behalf of an
// authenticated user.
//
// The client controls only the replication cursor (offset, handle, live,
// cursor, ...). Whatever it sends for table, where, params or secret is
// discarded and replaced with a filter on the caller's own user id, so a
// client can never subscribe to someone else's rows.
type ElectricProxy struct {
	target *url.URL
	secret string
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// NewElectricProxy targets the Electric service at baseURL, e.g.
// http://electric:3000. The shape path /v1/shape is appended.
func NewElectricProxy(baseURL, secret string, logger *slog.Logger) (*ElectricProxy, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("feed: parsing electric url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("feed: electric url %q must be absolute", baseURL)
	}

	p := &ElectricProxy{target: target, secret: secret, logger: logger}
	p.proxy = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		ErrorHandler: p.handleError,
		// Live shape requests are long polls; flush each chunk as it arrives.
		FlushInterval: -1,
	}
	return p, nil
}

// ServeHTTP must be mounted behind auth.RequireAuth.
func (p *ElectricProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
		return
	}
	p.proxy.ServeHTTP(w, r)
}

func (p *ElectricProxy) rewrite(pr *httputil.ProxyRequest) {
	user, _ := auth.UserFromContext(pr.In.Context())

	out := pr.Out.URL
	out.Scheme = p.target.Scheme
	out.Host = p.target.Host
	out.Path = strings.TrimRight(p.target.Path, "/") + "/v1/shape"
	out.RawPath = ""
	pr.Out.Host = ""

	out.RawQuery = ShapeQuery(pr.In.URL.Query(), user.ID, p.secret).Encode()

	// Electric has no use for our session, and must not see it.
	pr.Out.Header.Del("Cookie")
	pr.Out.Header.Del("Authorization")
	pr.SetXForwarded()
}

// ShapeQuery returns the client's query with every row-selection parameter
// replaced by a filter on userID.
func ShapeQuery(in url.Values, userID, secret string) url.Values {
	q := url.Values{}
	for key, values := range in {
		if isReservedShapeParam(key) {
			continue
		}
		q[key] = values
	}
	q.Set("table", ShapeTable)
	q.Set("where", "user_id = $1")
	q.Set("params[1]", userID)
	if secret != "" {
		q.Set("secret", secret)
	}
	return q
}

func isReservedShapeParam(key string) bool {
	switch key {
	case "table", "where", "columns", "secret", "api_secret", "params":
		return true
	}
	return strings.HasPrefix(key, "params[") || strings.HasPrefix(key, "params.")
}

func (p *ElectricProxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error("electric proxy error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	w.Write([]byte(`{"error":"bad_gateway","message":"change feed unavailable"}`))
}
