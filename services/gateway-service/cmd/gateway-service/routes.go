package main

import (
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/healthcarepro/clinicbook/libs/auth"
	"github.com/healthcarepro/clinicbook/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-Role"
)

type tokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
		httpx.WriteError(w, http.StatusBadGateway, "upstream_unavailable", "booking service unavailable")
	}
	return proxy
}

func registerRoutes(mux *http.ServeMux, booking http.Handler, verifier tokenVerifier, logger *zap.Logger) {
	registerProxy(mux, "/api/v1/public", stripIdentity(booking))
	// Roles live in booking-service's staff accounts, which it checks on
	// every staff and admin route. The edge only establishes who is calling.
	registerProxy(mux, "/api/v1/staff", requireAuth(booking, verifier, logger))
	registerProxy(mux, "/api/v1/admin", requireAuth(booking, verifier, logger))

	mux.HandleFunc("GET /openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// stripIdentity drops identity headers a client may have forged. Upstream
// services trust them only because the gateway sets them.
func stripIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(headerUserID)
		r.Header.Del(headerRole)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, verifier tokenVerifier, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(headerUserID)
		r.Header.Del(headerRole)

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
			return
		}

		claims, err := verifier.Verify(authHeader)
		if err != nil {
			logger.Info("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		r.Header.Set(headerUserID, claims.Subject)
		r.Header.Set(headerRole, claims.Role)
		next.ServeHTTP(w, r)
	})
}
