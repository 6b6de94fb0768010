package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/forgo/progression/internal/model"
)

// DataResponse wraps a successful response with optional HATEOAS links
type DataResponse struct {
	Data  interface{}       `json:"data"`
	Links map[string]string `json:"_links,omitempty"`
}

// CollectionResponse wraps a collection response with pagination
type CollectionResponse struct {
	Data       interface{}       `json:"data"`
	Pagination *PaginationInfo   `json:"pagination,omitempty"`
	Links      map[string]string `json:"_links,omitempty"`
}

// PaginationInfo describes one limit-bounded page of a collection
type PaginationInfo struct {
	Limit   int  `json:"limit,omitempty"`
	Count   int  `json:"count"`
	HasMore bool `json:"has_more"`
}

// limitPage describes count items read with limit. A full page may have
// more behind it; limit 0 means unbounded.
func limitPage(limit, count int) *PaginationInfo {
	return &PaginationInfo{
		Limit:   limit,
		Count:   count,
		HasMore: limit > 0 && count >= limit,
	}
}

// userRelations maps a link relation to its path below /v1/users/{userId}
var userRelations = map[string]string{
	"progression": "/progression",
	"badges":      "/badges",
	"earned":      "/badges/earned",
	"changes":     "/changes",
	"events":      "/events",
	"history":     "/scheduler/history",
	"snapshots":   "/snapshots",
	"insights":    "/query/correlations",
}

// userLinks builds the _links of a user-scoped response. self is the path
// of the served resource below the user and is left out when empty.
func userLinks(userID, self string, rels ...string) map[string]string {
	base := "/v1/users/" + url.PathEscape(userID)
	links := make(map[string]string, len(rels)+1)
	if self != "" {
		links["self"] = base + self
	}
	for _, rel := range rels {
		if p, ok := userRelations[rel]; ok {
			links[rel] = base + p
		}
	}
	return links
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteData writes a successful data response
func WriteData(w http.ResponseWriter, status int, data interface{}, links map[string]string) {
	response := DataResponse{
		Data:  data,
		Links: links,
	}
	WriteJSON(w, status, response)
}

// WriteCollection writes a collection response with pagination
func WriteCollection(w http.ResponseWriter, status int, data interface{}, pagination *PaginationInfo, links map[string]string) {
	response := CollectionResponse{
		Data:       data,
		Pagination: pagination,
		Links:      links,
	}
	WriteJSON(w, status, response)
}

// WriteError writes an error response using RFC 9457 Problem Details
func WriteError(w http.ResponseWriter, err *model.ProblemDetails) {
	WriteJSON(w, err.Status, err)
}

// DecodeJSON decodes a JSON request body into the given struct
func DecodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
