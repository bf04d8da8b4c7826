package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/eoty/eoty-backend/internal/platform/envutil"
)

func CORS() gin.HandlerFunc {
	origins := envutil.List("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	})
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "Range"},
		ExposeHeaders:    []string{"Content-Disposition", "Content-Range", "Accept-Ranges"},
		AllowCredentials: true,
	})
}
