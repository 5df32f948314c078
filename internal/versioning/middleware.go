package versioning

import (
	"context"
	"net/http"

	"furnidesk/internal/errors"
	"furnidesk/internal/httputil"

	"github.com/sirupsen/logrus"
)

const (
	AcceptVersionHeader     = "Accept-Version"
	APIVersionHeader        = "X-API-Version"
	CurrentVersionHeader    = "X-Current-Version"
	SupportedVersionsHeader = "X-Supported-Versions"
)

type contextKey struct{}

// Middleware negotiates the API version. Requests without a version header
// get the current version; unparseable or unsupported versions are rejected
// before reaching the handler.
func Middleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CurrentVersionHeader, CurrentVersion.String())
			w.Header().Set(SupportedVersionsHeader, SupportedRange())

			requested := r.Header.Get(AcceptVersionHeader)
			if requested == "" {
				requested = r.Header.Get(APIVersionHeader)
			}

			version := CurrentVersion
			if requested != "" {
				v, err := ParseVersion(requested)
				if err != nil {
					httputil.WriteError(w, r, logger, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid api version").
						WithContext("requested_version", requested).
						WithUserMessage("Invalid API version"))
					return
				}
				if !IsSupported(v) {
					httputil.WriteError(w, r, logger, errors.New(errors.ErrCodeInvalidInput, "unsupported api version").
						WithContext("requested_version", v.String()).
						WithContext("supported_versions", SupportedRange()).
						WithUserMessage("This API version is not supported"))
					return
				}
				version = v
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, version)))
		})
	}
}

// FromContext returns the version negotiated for the request.
func FromContext(ctx context.Context) (APIVersion, bool) {
	v, ok := ctx.Value(contextKey{}).(APIVersion)
	return v, ok
}
