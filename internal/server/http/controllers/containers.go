package controllers

import (
	"net/http"

	"github.com/rzbill/sharedlog/internal/logmanager"
	"github.com/rzbill/sharedlog/internal/runtime"
	"github.com/rzbill/sharedlog/pkg/id"
)

// ContainersController exposes the hosted containers read-only, plus flush.
type ContainersController struct {
	rt *runtime.Runtime
}

// NewContainersController creates a new containers controller.
func NewContainersController(rt *runtime.Runtime) *ContainersController {
	return &ContainersController{rt: rt}
}

// RegisterRoutes registers the container endpoints:
//   - GET  /v1/containers
//   - GET  /v1/containers/streams?id=<container id>
//   - POST /v1/containers/flush?id=<container id>
func (c *ContainersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/containers", c.handleList)
	mux.HandleFunc("/v1/containers/streams", c.handleStreams)
	mux.HandleFunc("/v1/containers/flush", c.handleFlush)
}

func (c *ContainersController) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	out := make([]containerView, 0)
	for _, ct := range c.rt.Containers() {
		out = append(out, newContainerView(ct))
	}
	writeJSON(w, map[string]any{"containers": out})
}

func (c *ContainersController) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ct, ok := c.lookup(w, r)
	if !ok {
		return
	}
	infos := ct.Streams()
	out := make([]streamView, 0, len(infos))
	for _, si := range infos {
		out = append(out, newStreamView(si))
	}
	writeJSON(w, map[string]any{"container": ct.ID().String(), "streams": out})
}

func (c *ContainersController) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ct, ok := c.lookup(w, r)
	if !ok {
		return
	}
	if err := ct.Flush(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeNoContent(w)
}

// lookup resolves the id query parameter to a hosted container, writing the
// error response itself when it cannot.
func (c *ContainersController) lookup(w http.ResponseWriter, r *http.Request) (*logmanager.Container, bool) {
	cid, err := id.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid container id")
		return nil, false
	}
	for _, ct := range c.rt.Containers() {
		if ct.ID() == cid {
			return ct, true
		}
	}
	writeError(w, http.StatusNotFound, "Container not hosted")
	return nil, false
}
