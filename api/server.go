package api

import (
	"github.com/gin-gonic/gin"

	"github.com/soullab/oracle-choreography/api/handlers"
)

// NewServer builds the REST API router.
func NewServer(deps *handlers.Deps) *gin.Engine {
	r := gin.Default()
	SetupRoutes(r, deps)
	return r
}

// StartServer runs the REST API on addr (e.g. ":8080").
func StartServer(addr string, deps *handlers.Deps) error {
	return NewServer(deps).Run(addr)
}
