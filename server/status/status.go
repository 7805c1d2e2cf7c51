package status

import "github.com/gin-gonic/gin"

// Handler implements the status API for a component, registered under
// '/status' on the admin server.
type Handler interface {
	Register(group *gin.RouterGroup)
}
