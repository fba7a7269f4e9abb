package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/cache"
)

// maxValueBytes bounds a PUT body.
const maxValueBytes = 64 << 20

// Handler serves a node's local cache to its peers. Give it the local
// manager (distributed.Manager.Local), not the distributed one, so that
// replicated writes are not replicated again.
type Handler[V any] struct {
	store  cache.Cache[V]
	log    *zap.Logger
	router *httprouter.Router
}

// NewHandler builds the peer routes over store. A nil logger is a no-op.
func NewHandler[V any](store cache.Cache[V], log *zap.Logger) *Handler[V] {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler[V]{store: store, log: log.Named("httptransport")}

	r := httprouter.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.GET(PathPrefix+"*key", h.get)
	r.PUT(PathPrefix+"*key", h.put)
	r.DELETE(PathPrefix+"*key", h.remove)
	h.router = r
	return h
}

func (h *Handler[V]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// key strips the catch-all's leading slash; keys may contain slashes.
func key(ps httprouter.Params) string {
	return strings.TrimPrefix(ps.ByName("key"), "/")
}

func (h *Handler[V]) get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	k := key(ps)
	if k == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	v, ok := h.store.Get(k)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("encode value", zap.String("key", k), zap.Error(err))
	}
}

func (h *Handler[V]) put(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	k := key(ps)
	if k == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	var ttl time.Duration
	if s := r.URL.Query().Get("ttl"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	var v V
	if err := json.NewDecoder(io.LimitReader(r.Body, maxValueBytes)).Decode(&v); err != nil {
		http.Error(w, "invalid value: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.PutWithTTL(k, v, ttl); err != nil {
		switch {
		case errors.Is(err, cache.ErrCapacity):
			http.Error(w, err.Error(), http.StatusInsufficientStorage)
		case errors.Is(err, cache.ErrClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			h.log.Error("store value", zap.String("key", k), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler[V]) remove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !h.store.Remove(key(ps)) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
