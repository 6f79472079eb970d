package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// route is one entry of the declarative route table.
type route struct {
	Method  string
	Path    string
	Handler []gin.HandlerFunc
}

func (h *handlers) routes() []route {
	return []route{
		{Method: http.MethodGet, Path: "/api/health", Handler: []gin.HandlerFunc{h.health}},
		{Method: http.MethodGet, Path: "/api/table/:table/records", Handler: []gin.HandlerFunc{h.listRecords}},
		{Method: http.MethodPost, Path: "/api/table/:table/records", Handler: []gin.HandlerFunc{h.createRecord}},
		{Method: http.MethodPatch, Path: "/api/table/:table/records/:id", Handler: []gin.HandlerFunc{h.updateRecord}},
		{Method: http.MethodDelete, Path: "/api/table/:table/records/:id", Handler: []gin.HandlerFunc{h.deleteRecord}},
	}
}
