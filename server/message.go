package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Request is one line of JSON sent by a client. Which fields are used
// depends on Type. Timeout, in seconds, bounds how long the request may run
// and is also the time allowed for a shortestPath search.
type Request struct {
	ID                  string `json:"id"`
	Type                string `json:"type"`
	Query               string `json:"query,omitempty"`
	Limit               int    `json:"limit,omitempty"`
	PageTitle           string `json:"pageTitle,omitempty"`
	PageTitle2          string `json:"pageTitle2,omitempty"`
	TimeLimitInSeconds  int    `json:"timeLimitInSeconds,omitempty"`
	MaxItems            int    `json:"maxItems,omitempty"`
	TimeWindowInSeconds *int   `json:"timeWindowInSeconds,omitempty"`
	Timeout             int    `json:"timeout,omitempty"`
}

// Response is one line of JSON sent back for each request. Status is empty
// in the reply to a stop request.
type Response struct {
	ID       string          `json:"id"`
	Status   string          `json:"status,omitempty"`
	Response json.RawMessage `json:"response"`
}

// Err returns the error carried by a failed response, or nil.
func (r *Response) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	var msg string
	if err := json.Unmarshal(r.Response, &msg); err != nil {
		return fmt.Errorf("request %s failed", r.ID)
	}
	return errors.New(msg)
}

// Decode decodes the response payload into v.
func (r *Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	return json.Unmarshal(r.Response, v)
}

func newResponse(id, status string, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		status = StatusFailed
		data, _ = json.Marshal(err.Error())
	}
	return &Response{
		ID:       id,
		Status:   status,
		Response: data,
	}
}

func failed(id string, msg string) *Response {
	return newResponse(id, StatusFailed, msg)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
