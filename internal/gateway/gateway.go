// Package gateway routes public API paths to the backing services.
package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libracatalog/internal/config"
	"libracatalog/internal/httpx"
)

// Route prefixes of the public API.
const (
	CatalogPrefix     = "/api/v1/catalog"
	CirculationPrefix = "/api/v1/circulation"
	MembershipPrefix  = "/api/v1/members"
)

// Routes returns a mount function proxying each prefix to its service.
func Routes(services config.ServicesConfig, logger *slog.Logger) (func(chi.Router), error) {
	targets := map[string]string{
		CatalogPrefix:     services.CatalogURL,
		CirculationPrefix: services.CirculationURL,
		MembershipPrefix:  services.MembershipURL,
	}
	proxies := make(map[string]http.Handler, len(targets))
	for prefix, raw := range targets {
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid upstream URL %q for %s", raw, prefix)
		}
		proxies[prefix] = newProxy(target, logger)
	}

	return func(r chi.Router) {
		for prefix, proxy := range proxies {
			r.Mount(prefix, http.StripPrefix(prefix, proxy))
		}
	}, nil
}

// Mount serves in-process handlers under the same prefixes the proxy
// uses, for the combined binary.
func Mount(r chi.Router, catalog, circulation, membership func(chi.Router)) {
	r.Route(CatalogPrefix, catalog)
	r.Route(CirculationPrefix, circulation)
	r.Route(MembershipPrefix, membership)
}

func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if id := middleware.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(middleware.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				slog.String("upstream", target.Host),
				slog.String("request_url", r.URL.String()),
				slog.String("error", err.Error()),
			)
			httpx.ErrorResponse(logger, w, r, http.StatusBadGateway, "the upstream service is unavailable")
		},
	}
}
