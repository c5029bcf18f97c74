package store

import (
	"net/http"
	"net/http/httptest"

	"github.com/gorilla/mux"
)

// NewTestServer starts an in-process HTTP server backed by a MemoryStore,
// routed with gorilla/mux the way the teacher's server package and
// client/client_root_validation_test.go's simpleTestServer fixture route
// metadata requests: GET /metadata/{name} for role documents, GET
// /targets/{name:.*} for target bodies. It is meant for loader and editor
// tests that exercise the real HTTPStore rather than MemoryStore directly.
func NewTestServer(metadata *MemoryStore, targets *MemoryStore) *httptest.Server {
	r := mux.NewRouter()
	r.HandleFunc("/metadata/{name}", func(w http.ResponseWriter, req *http.Request) {
		serveFromMemory(w, metadata, mux.Vars(req)["name"])
	}).Methods(http.MethodGet)
	r.HandleFunc("/targets/{name:.*}", func(w http.ResponseWriter, req *http.Request) {
		serveFromMemory(w, targets, mux.Vars(req)["name"])
	}).Methods(http.MethodGet)
	return httptest.NewServer(r)
}

func serveFromMemory(w http.ResponseWriter, ms *MemoryStore, name string) {
	body, ok := ms.Files[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
