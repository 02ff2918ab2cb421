package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/regwatch/internal/firmloader"
)

type ctxKey string

const firmLoaderKey ctxKey = "firmLoader"

// DataLoaderMiddleware attaches a fresh firm loader to every request context.
func DataLoaderMiddleware(source firmloader.Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := firmloader.NewFirmLoader(source)
			ctx := context.WithValue(r.Context(), firmLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FirmLoaderFromContext retrieves the request's firm loader, or nil.
func FirmLoaderFromContext(ctx context.Context) *firmloader.FirmLoader {
	if l, ok := ctx.Value(firmLoaderKey).(*firmloader.FirmLoader); ok {
		return l
	}
	return nil
}
