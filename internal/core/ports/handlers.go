package ports

import (
	"pairline/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// HTTPHandler mounts a group of REST endpoints.
type HTTPHandler interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Transport is the outbound half of a client connection. Send must not
// block: implementations enqueue and report overflow or closure as errors.
type Transport interface {
	Send(event *domain.Event) error
	Close() error
}
