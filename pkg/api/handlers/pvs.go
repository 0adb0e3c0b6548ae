package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/gdd"
	"github.com/marmos91/dittoca/pkg/softpv"
)

// PVInfo is one entry of GET /api/v1/pvs.
type PVInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Count    uint32 `json:"count"`
	Access   string `json:"access"`
	Channels int    `json:"channels"`
	Monitors int    `json:"monitors"`
}

// PVValue is the body of GET and PUT /api/v1/pvs/{name}.
type PVValue struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Count       uint32    `json:"count"`
	Value       any       `json:"value"`
	Units       string    `json:"units,omitempty"`
	Status      string    `json:"status"`
	Severity    string    `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	Access      string    `json:"access"`
	EnumStrings []string  `json:"enum_strings,omitempty"`
}

// PutPVRequest is the body of PUT /api/v1/pvs/{name}.
type PutPVRequest struct {
	Value any `json:"value"`
}

// PVHandler serves the PV endpoints.
type PVHandler struct {
	status StatusSource
	store  PVStore
}

// NewPVHandler creates a new PV handler. Either dependency may be nil.
func NewPVHandler(status StatusSource, store PVStore) *PVHandler {
	return &PVHandler{status: status, store: store}
}

// List handles GET /api/v1/pvs.
//
// Hosted PVs are listed in name order with the channel and monitor counts
// of the ones clients have attached.
func (h *PVHandler) List(w http.ResponseWriter, r *http.Request) {
	attached := make(map[string]cas.PVStats)
	if h.status != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()
		pvs, err := h.status.PVs(ctx)
		if err != nil {
			ServiceUnavailable(w, err.Error())
			return
		}
		for _, p := range pvs {
			attached[p.Name] = p
		}
	}

	out := make([]PVInfo, 0)
	if h.store != nil {
		for _, name := range h.store.Names() {
			pv, _ := h.store.PV(name)
			a := attached[name]
			out = append(out, PVInfo{
				Name:     name,
				Type:     pv.BestExternalType().String(),
				Count:    pv.MaxElements(),
				Access:   pv.AccessRights(cas.ChannelInfo{}).String(),
				Channels: a.Channels,
				Monitors: a.Monitors,
			})
		}
	}
	WriteJSONOK(w, out)
}

// Get handles GET /api/v1/pvs/{name}.
func (h *PVHandler) Get(w http.ResponseWriter, r *http.Request) {
	pv, ok := getPVOrNotFound(w, r, h.store)
	if !ok {
		return
	}
	WriteJSONOK(w, newPVValue(pv))
}

// Put handles PUT /api/v1/pvs/{name}. The write is applied the way a
// client write is: converted, clamped, alarm checked and posted to
// monitors. Read-only PVs refuse it.
func (h *PVHandler) Put(w http.ResponseWriter, r *http.Request) {
	pv, ok := getPVOrNotFound(w, r, h.store)
	if !ok {
		return
	}
	if !pv.AccessRights(cas.ChannelInfo{}).CanWrite() {
		Forbidden(w, "PV is not writable: "+pv.Name())
		return
	}

	var req PutPVRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	v, err := goValue(req.Value)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := h.store.Put(r.Context(), pv.Name(), v); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}

	logger.InfoCtx(r.Context(), "PV written through the API", logger.KeyChannel, pv.Name())
	WriteJSONOK(w, newPVValue(pv))
}

func newPVValue(pv *softpv.PV) PVValue {
	snap := pv.Snapshot()
	defer snap.Unreference()

	out := PVValue{
		Name:   pv.Name(),
		Type:   pv.BestExternalType().String(),
		Count:  pv.MaxElements(),
		Access: pv.AccessRights(cas.ChannelInfo{}).String(),
	}
	if v := snap.Find(gdd.TagValue); v != nil {
		out.Value = v.Value()
		out.Status = ca.AlarmStatusName(v.Status())
		out.Severity = ca.SeverityName(v.Severity())
		out.Timestamp = v.TimeStamp().Time().UTC()
	}
	if u := snap.Find(gdd.TagUnits); u != nil {
		out.Units, _ = u.StringValue()
	}
	if t := pv.EnumStrings(); t != nil {
		out.EnumStrings = t.Strings()
	}
	return out
}

// goValue maps a decoded JSON value onto the Go values softpv.Host.Put
// accepts.
func goValue(v any) (any, error) {
	switch x := v.(type) {
	case float64, string:
		return x, nil
	case []any:
		if len(x) == 0 {
			return nil, fmt.Errorf("empty array")
		}
		if _, ok := x[0].(string); ok {
			out := make([]string, len(x))
			for i, e := range x {
				s, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("mixed array at element %d", i)
				}
				out[i] = s
			}
			return out, nil
		}
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("mixed array at element %d", i)
			}
			out[i] = f
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("missing value")
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}
