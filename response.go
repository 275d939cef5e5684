package warden

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gertd/go-pluralize"
)

var pluralizer = pluralize.NewClient()

// Link relations used by admin responses.
const (
	RelSelf       = "self"
	RelCollection = "collection"
	RelUpdate     = "update"
	RelDelete     = "delete"
)

// Link represents a HATEOAS link returned in JSON envelopes.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// SuccessResponse defines the envelope for successful responses.
type SuccessResponse struct {
	Data  interface{} `json:"data"`
	Meta  interface{} `json:"meta,omitempty"`
	Links []Link      `json:"links,omitempty"`
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorPayload defines the internal structure of the error object.
type ErrorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

// ErrorResponse defines the envelope for error responses.
type ErrorResponse struct {
	Error ErrorPayload `json:"error"`
}

// RespondSuccess sends a 200 JSON envelope with optional links.
func RespondSuccess(w http.ResponseWriter, data interface{}, links ...Link) {
	writeJSON(w, http.StatusOK, SuccessResponse{Data: data, Links: links})
}

// Respond sends a JSON envelope with an explicit status code.
func Respond(w http.ResponseWriter, code int, data interface{}, meta interface{}) {
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}
	writeJSON(w, code, SuccessResponse{Data: data, Meta: meta})
}

// RespondError sends an error envelope using the status text as code.
func RespondError(w http.ResponseWriter, code int, message string) {
	Error(w, code, http.StatusText(code), message)
}

// Error sends a JSON error envelope with optional validation details.
func Error(w http.ResponseWriter, code int, errorCode string, message string, details ...ValidationError) {
	writeJSON(w, code, ErrorResponse{
		Error: ErrorPayload{
			Code:    errorCode,
			Message: message,
			Details: details,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Pluralize converts a singular resource type into its plural form.
func Pluralize(singular string) string {
	return pluralizer.Plural(singular)
}

// ItemLinksFor builds self/update/delete/collection links for one resource
// of resourceType identified by id under basePath.
func ItemLinksFor(basePath, resourceType, id string) []Link {
	collection := CollectionPath(basePath, resourceType)
	item := collection + "/" + strings.TrimPrefix(id, "/")
	return []Link{
		{Rel: RelSelf, Href: item},
		{Rel: RelUpdate, Href: item},
		{Rel: RelDelete, Href: item},
		{Rel: RelCollection, Href: collection},
	}
}

// CollectionLinksFor builds the self link of a resource collection.
func CollectionLinksFor(basePath, resourceType string) []Link {
	return []Link{{Rel: RelSelf, Href: CollectionPath(basePath, resourceType)}}
}

// CollectionPath joins basePath with the pluralized resource type.
func CollectionPath(basePath, resourceType string) string {
	return strings.TrimRight(basePath, "/") + "/" + Pluralize(resourceType)
}
