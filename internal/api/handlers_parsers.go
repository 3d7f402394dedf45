package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// handleParsers reports the registered parsers and the MIME types each one
// accepts, in registration order.
func (s *Server) handleParsers(w http.ResponseWriter, r *http.Request) {
	type parserInfo struct {
		Parser    string   `json:"parser"`
		MIMETypes []string `json:"mime_types"`
	}

	parsers := s.registry.Parsers()
	out := make([]parserInfo, 0, len(parsers))
	for _, p := range parsers {
		name := strings.TrimPrefix(fmt.Sprintf("%T", p), "*parser.")
		out = append(out, parserInfo{Parser: name, MIMETypes: p.MIMETypes()})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"parsers": out})
}
