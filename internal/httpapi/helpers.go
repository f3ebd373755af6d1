package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// splitBotPath parses "/api/bots/{id}" or "/api/bots/{id}/{action}" into its
// id and action parts. action is empty for a bare resource path.
func splitBotPath(path string) (id, action string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/api/bots/")
	if trimmed == path {
		return "", "", false
	}
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], "", true
	}
	return parts[0], parts[1], true
}
