package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// adminTokenMiddleware requires "Authorization: Bearer <admin token>".
func (s *Server) adminTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.unauthorizedErrorResponse(w, r, errors.New("authorization header is missing"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.unauthorizedErrorResponse(w, r, errors.New("authorization header is malformed"))
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.adminToken)) != 1 {
			s.unauthorizedErrorResponse(w, r, errors.New("invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
