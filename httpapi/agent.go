package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"statemesh/core"
	"statemesh/internal/logging"
)

// NewAgentServer builds the app-facing HTTP server: reads and writes
// against the local engine only, with no peer awareness.
func NewAgentServer(engine *core.DefaultEngine, addr string) *http.Server {
	r := mux.NewRouter()
	log := logging.For("agent-server")

	r.HandleFunc("/{key}", func(w http.ResponseWriter, req *http.Request) {
		key := mux.Vars(req)["key"]
		entry, ok := engine.Get(key)
		if !ok {
			http.Error(w, fmt.Sprintf("key %q not found", key), http.StatusNotFound)
			return
		}
		if _, ok := entry.Value.AsBytes(); !ok {
			http.Error(w, fmt.Sprintf("key %q has no value", key), http.StatusBadRequest)
			return
		}
		body, err := json.Marshal(entry)
		if err != nil {
			http.Error(w, fmt.Sprintf("encode key %q: %v", key, err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}).Methods(http.MethodGet)

	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		var writes map[string]core.Entry
		if err := json.NewDecoder(req.Body).Decode(&writes); err != nil {
			log.Warnf("rejecting malformed write: %v", err)
			http.Error(w, "malformed write request", http.StatusUnprocessableEntity)
			return
		}
		for key, entry := range writes {
			engine.Set(key, entry)
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPut)

	handler := withRequestLogging("agent-server", withJSONContentType(r))
	return &http.Server{Addr: addr, Handler: handler}
}
