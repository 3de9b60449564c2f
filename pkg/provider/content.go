package provider

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// RenderContent concatenates the content parts of a tool result into one text, in order.
// Text parts are kept verbatim; binary parts become inline data-URI images.
func RenderContent(parts []mcp.Content) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s, ok := renderPart(part); ok {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

func renderPart(part mcp.Content) (string, bool) {
	switch c := part.(type) {
	case mcp.TextContent:
		return c.Text, true
	case *mcp.TextContent:
		return c.Text, true
	case mcp.ImageContent:
		return DataURI(c.MIMEType, c.Data), true
	case *mcp.ImageContent:
		return DataURI(c.MIMEType, c.Data), true
	case mcp.AudioContent:
		return DataURI(c.MIMEType, c.Data), true
	case *mcp.AudioContent:
		return DataURI(c.MIMEType, c.Data), true
	case mcp.EmbeddedResource:
		return renderResource(c.Resource)
	case *mcp.EmbeddedResource:
		return renderResource(c.Resource)
	case mcp.ResourceLink:
		return fmt.Sprintf("[Resource: %s]", c.URI), true
	case *mcp.ResourceLink:
		return fmt.Sprintf("[Resource: %s]", c.URI), true
	default:
		return "", false
	}
}

func renderResource(res mcp.ResourceContents) (string, bool) {
	switch r := res.(type) {
	case mcp.TextResourceContents:
		return r.Text, true
	case *mcp.TextResourceContents:
		return r.Text, true
	case mcp.BlobResourceContents:
		return DataURI(r.MIMEType, r.Blob), true
	case *mcp.BlobResourceContents:
		return DataURI(r.MIMEType, r.Blob), true
	default:
		return "", false
	}
}

// DataURI renders payload as ![image](data:<mime>;base64,<payload>).
// A payload that is not already valid base64 is encoded first.
func DataURI(mimeType, payload string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		payload = base64.StdEncoding.EncodeToString([]byte(payload))
	}
	return fmt.Sprintf("![image](data:%s;base64,%s)", mimeType, payload)
}
