package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"

	"google.golang.org/api/gmail/v1"
)

var scriptPattern = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

func stripScripts(html string) string {
	return scriptPattern.ReplaceAllString(html, "")
}

func decodeBodyData(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b), true
	}
	return "", false
}

// extractBody prefers the first text/html part and falls back to text/plain.
func extractBody(payload *gmail.MessagePart) (string, bool) {
	if len(payload.Parts) == 0 && payload.Body != nil && payload.Body.Data != "" {
		if body, ok := decodeBodyData(payload.Body.Data); ok {
			return body, payload.MimeType == "text/html"
		}
	}

	var htmlBody, plainBody string
	var walk func(parts []*gmail.MessagePart)
	walk = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
				switch part.MimeType {
				case "text/html":
					if htmlBody == "" {
						htmlBody, _ = decodeBodyData(part.Body.Data)
					}
				case "text/plain":
					if plainBody == "" {
						plainBody, _ = decodeBodyData(part.Body.Data)
					}
				}
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)

	if htmlBody != "" {
		return htmlBody, true
	}
	return plainBody, false
}
