package apiclient

import "time"

// PVInfo is a hosted PV.
type PVInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Count    uint32 `json:"count"`
	Access   string `json:"access"`
	Channels int    `json:"channels"`
	Monitors int    `json:"monitors"`
}

// PVValue is a PV's current value with its alarm state.
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

// PutPVRequest is the request to write a PV.
type PutPVRequest struct {
	Value any `json:"value"`
}

// ListPVs returns the hosted PVs in name order.
func (c *Client) ListPVs() ([]PVInfo, error) {
	return listResources[PVInfo](c, "/api/v1/pvs")
}

// GetPV returns the value of a PV.
func (c *Client) GetPV(name string) (*PVValue, error) {
	return getResource[PVValue](c, resourcePath("/api/v1/pvs/%s", name))
}

// PutPV writes a PV and returns the value it holds afterwards, which may
// differ from value after clamping. value is a number, a string or a list
// of either.
func (c *Client) PutPV(name string, value any) (*PVValue, error) {
	return updateResource[PVValue](c, resourcePath("/api/v1/pvs/%s", name), PutPVRequest{Value: value})
}
