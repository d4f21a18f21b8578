package auth

import (
	"context"
	"fmt"
	neturl "net/url"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewJWKS loads the identity provider's key set from url and refreshes it
// every interval until ctx is done. A token signed with an unknown key id
// triggers an early refresh, at most once a minute. A failed first fetch is
// not fatal; verification fails until a refresh succeeds.
func NewJWKS(ctx context.Context, url string, interval time.Duration, logger *zap.Logger) (jwt.Keyfunc, error) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	u, err := neturl.Parse(url)
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}
	store, err := jwkset.NewStorageFromHTTP(u, jwkset.HTTPClientStorageOptions{
		Ctx:                       ctx,
		HTTPTimeout:               5 * time.Second,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           interval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Warn("jwks refresh failed", zap.String("url", url), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}

	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{url: store},
		RateLimitWaitMax:  time.Minute,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(time.Minute), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}

	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: client})
	if err != nil {
		return nil, fmt.Errorf("jwks %s: %w", url, err)
	}
	return k.Keyfunc, nil
}
