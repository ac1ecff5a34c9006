package request

import "regexp"

// Content types set by the WithJSONBody and WithFormBody shortcuts.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Matches "application/json" and vendor variants like "application/vnd.api+json".
var jsonContentType = regexp.MustCompile(`^application/([a-zA-Z0-9.\-]+\+)?json$`)

func isJSONContentType(contentType string) bool {
	return jsonContentType.MatchString(contentType)
}
