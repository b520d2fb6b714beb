package controllers

import (
	"net/http"

	"github.com/rzbill/sharedlog/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general    *GeneralController
	containers *ContainersController
}

// NewControllerRegistry creates a new controller registry over rt.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general:    NewGeneralController(rt),
		containers: NewContainersController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.containers.RegisterRoutes(mux)
}
