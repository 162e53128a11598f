package apiserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// tokenAuthMiddleware guards the v1 routes with the configured admin
// token. Only a bcrypt hash of the token is held once the server is up.
func tokenAuthMiddleware(adminTokenHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logrus.Debugf("request URL path: %s", r.URL.Path)
			authorization := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authorization, "Bearer ")
			if token == "" {
				writeError(w, http.StatusForbidden, errors.New("must specify a bearer token"))
				return
			}

			if err := bcrypt.CompareHashAndPassword(adminTokenHash, []byte(token)); err != nil {
				writeError(w, http.StatusForbidden, errors.New("forbidden to use"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
