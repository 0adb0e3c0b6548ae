package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/softpv"
)

// statusTimeout bounds the calls into the server engine.
const statusTimeout = 5 * time.Second

// StatusSource reports the state of the Channel Access server.
// *cas.Server implements it.
type StatusSource interface {
	Stats(ctx context.Context) (cas.Stats, error)
	PVs(ctx context.Context) ([]cas.PVStats, error)
}

// PVStore gives access to the hosted soft PVs. *softpv.Host implements it.
type PVStore interface {
	Names() []string
	PV(name string) (*softpv.PV, bool)
	Put(ctx context.Context, name string, v any) error
}

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

var (
	_ StatusSource = (*cas.Server)(nil)
	_ PVStore      = (*softpv.Host)(nil)
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// getPVOrNotFound looks up the PV named in the URL, writing 404 if it is
// not hosted here.
func getPVOrNotFound(w http.ResponseWriter, r *http.Request, store PVStore) (*softpv.PV, bool) {
	name := chi.URLParam(r, "name")
	if store == nil {
		NotFound(w, "No PVs are hosted")
		return nil, false
	}
	pv, ok := store.PV(name)
	if !ok {
		NotFound(w, "PV not found: "+name)
		return nil, false
	}
	return pv, true
}
