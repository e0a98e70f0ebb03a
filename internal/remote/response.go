package remote

import (
	"encoding/json"
	"fmt"
)

// Response is the parsed outcome of a remote API call. Non-2xx responses
// are returned as values, not errors: the dispatcher maps the HTTP class
// onto job statuses (2xx success, 5xx requeue, otherwise failure).
type Response struct {
	HTTPCode int
	Data     json.RawMessage
}

func (r *Response) Success() bool {
	return r.HTTPCode >= 200 && r.HTTPCode < 300
}

func (r *Response) ServerError() bool {
	return r.HTTPCode >= 500
}

// DecodeData unmarshals the response body into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IDSet is the body of an overview enumeration.
type IDSet struct {
	IDs []int64 `json:"ids"`
}

// Signal is one entity's drift marker from the sync endpoint: either the
// literal "full" or a list of dirty ids.
type Signal struct {
	Full bool
	IDs  []int64
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		if token != "full" {
			return fmt.Errorf("unknown sync token %q", token)
		}
		s.Full = true
		return nil
	}

	return json.Unmarshal(data, &s.IDs)
}

// SyncData is the drift signal per entity type. Absent entities need no
// healing.
type SyncData struct {
	Users      *Signal `json:"users,omitempty"`
	Categories *Signal `json:"categories,omitempty"`
	Products   *Signal `json:"products,omitempty"`
	Orders     *Signal `json:"orders,omitempty"`
}
