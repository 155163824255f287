package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// routeRegistrar is anything that mounts its own routes
type routeRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

func setupServer(port string, registrars ...routeRegistrar) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	for _, r := range registrars {
		r.RegisterRoutes(mux)
	}

	handler := c.Handler(mux)

	// h2c lets Connect clients speak HTTP/2 without TLS
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
