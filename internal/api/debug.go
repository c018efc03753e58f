package api

import (
	"net/http"
	"time"

	"palletroute/internal/buildinfo"
)

// DebugJSON reports build information and the non-secret configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": s.Config.Public(),
	})
}
