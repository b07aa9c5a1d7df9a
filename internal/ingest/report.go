package ingest

import (
	"fmt"
	"strings"
)

// FailureReport renders all rejections of one event into a single comment
// body. One comment per event, not one per failure.
func FailureReport(rejected []Rejection) string {
	if len(rejected) == 0 {
		return ""
	}
	var parts []string
	for _, r := range rejected {
		parts = append(parts, fmt.Sprintf("= File %s failed validation: =\n\n%s", r.URL, r.Reason))
	}
	return strings.Join(parts, "\n\n")
}
