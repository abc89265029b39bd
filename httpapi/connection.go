package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"statemesh/core"
	"statemesh/internal/logging"
)

// NewConnectionServer builds the peer-facing HTTP server used by the
// gossip loops: version-gated GET for pulls, delta PUT for pushes.
func NewConnectionServer(engine *core.DefaultEngine, addr string) *http.Server {
	r := chi.NewRouter()
	log := logging.For("connection-server")

	getRoot := func(w http.ResponseWriter, req *http.Request) {
		versionParam := chi.URLParam(req, "version")
		if versionParam == "" {
			writeFullRoot(w, engine)
			return
		}

		requested, err := strconv.ParseUint(versionParam, 10, 64)
		if err != nil {
			// an unparsable version segment is treated the same as an
			// absent one: the requester doesn't know a usable version yet.
			writeFullRoot(w, engine)
			return
		}

		if requested == engine.Version() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeFullRoot(w, engine)
	}

	r.Get("/", getRoot)
	r.Get("/{version}", getRoot)

	r.Put("/", func(w http.ResponseWriter, req *http.Request) {
		var delta map[string]core.Entry
		if err := json.NewDecoder(req.Body).Decode(&delta); err != nil {
			log.Warnf("rejecting malformed push: %v", err)
			http.Error(w, "malformed push body", http.StatusUnprocessableEntity)
			return
		}
		for key, entry := range delta {
			engine.Set(key, entry)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	handler := withRequestLogging("connection-server", withJSONContentType(r))
	return &http.Server{Addr: addr, Handler: handler}
}

func writeFullRoot(w http.ResponseWriter, engine *core.DefaultEngine) {
	root := engine.GetRoot()
	body, err := json.Marshal(root)
	if err != nil {
		http.Error(w, fmt.Sprintf("encode root: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
