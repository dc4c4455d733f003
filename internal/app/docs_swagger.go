//go:build swagger

package app

import (
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// swaggerSpecPath is where `swag init` writes the spec, relative to the working directory.
var swaggerSpecPath = "docs/swagger.json"

func init() {
	registerDocs = func(router *gin.Engine) {
		if path := os.Getenv("SWAGGER_SPEC"); path != "" {
			swaggerSpecPath = path
		}
		router.StaticFile("/swagger-spec/doc.json", swaggerSpecPath)
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger-spec/doc.json")))
	}
}
