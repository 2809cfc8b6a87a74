package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering business module.
// Each module mounts its resources under the versioned API group.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup)
}
