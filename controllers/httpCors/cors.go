package httpCors

import (
	"github.com/rs/cors"
)

func CorsSettings(frontendOrigin string) *cors.Cors {
	c := cors.New(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedOrigins:   []string{frontendOrigin},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Authorization"},
	})
	return c
}
