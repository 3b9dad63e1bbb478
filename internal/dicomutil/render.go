package dicomutil

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/suyashkumar/dicom"
)

// maxRenderedLen caps every rendered tag value. Long values are truncated
// with an ellipsis so review payloads stay bounded.
const maxRenderedLen = 200

// RenderValue converts an element value to the review string form:
// single strings pass through, multi-values join with " \ ", byte data is
// decoded when printable UTF-8 and otherwise summarized as
// "[binary: N bytes]". Everything truncates at 200 characters.
func RenderValue(v dicom.Value) string {
	if v == nil {
		return ""
	}
	return truncate(renderRaw(v.GetValue()))
}

func renderRaw(raw interface{}) string {
	switch val := raw.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, " \\ ")
	case []int:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, " \\ ")
	case []float64:
		parts := make([]string, len(val))
		for i, f := range val {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, " \\ ")
	case []byte:
		if isPrintableUTF8(val) {
			return strings.TrimRight(string(val), "\x00 ")
		}
		return fmt.Sprintf("[binary: %d bytes]", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func isPrintableUTF8(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	if len(s) <= maxRenderedLen {
		return s
	}
	return s[:maxRenderedLen-3] + "..."
}
