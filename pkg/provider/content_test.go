package provider_test

import (
	"testing"

	"github.com/dengzhuofu/foodai-agent/pkg/provider"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestRenderContent_KeepsOrder(t *testing.T) {
	parts := []mcp.Content{
		mcp.NewTextContent("Your coupon:"),
		mcp.NewImageContent("aGVsbG8=", "image/png"),
		mcp.TextContent{Type: "text", Text: "valid today"},
	}

	got := provider.RenderContent(parts)

	assert.Equal(t, "Your coupon:\n![image](data:image/png;base64,aGVsbG8=)\nvalid today", got)
}

func TestRenderContent_Resources(t *testing.T) {
	parts := []mcp.Content{
		mcp.EmbeddedResource{Type: "resource", Resource: mcp.TextResourceContents{URI: "menu://today", Text: "Big Mac"}},
		mcp.EmbeddedResource{Type: "resource", Resource: mcp.BlobResourceContents{URI: "menu://logo", MIMEType: "image/jpeg", Blob: "AAEC"}},
	}

	got := provider.RenderContent(parts)

	assert.Equal(t, "Big Mac\n![image](data:image/jpeg;base64,AAEC)", got)
}

func TestDataURI(t *testing.T) {
	assert.Equal(t, "![image](data:image/png;base64,aGVsbG8=)", provider.DataURI("image/png", "aGVsbG8="))

	// Raw bytes are encoded.
	assert.Equal(t, "![image](data:image/gif;base64,aGk/IQ==)", provider.DataURI("image/gif", "hi?!"))

	assert.Equal(t, "![image](data:application/octet-stream;base64,AAEC)", provider.DataURI("", "AAEC"))
}

func TestJSONTable(t *testing.T) {
	in := `[{"name":"McSpicy","price":22.5},{"name":"Fries|L","price":12}]`

	got := provider.JSONTable(in)

	want := "| name | price |\n| --- | --- |\n| McSpicy | 22.5 |\n| Fries\\|L | 12 |"
	assert.Equal(t, want, got)
}

func TestJSONTable_PassThrough(t *testing.T) {
	for _, in := range []string{"plain text", `{"a":1}`, `[]`, `[1,2]`} {
		assert.Equal(t, in, provider.JSONTable(in), in)
	}
}

func TestFormatters_Apply(t *testing.T) {
	f := provider.Formatters{"upper": func(s string) string { return s + "!" }}

	assert.Equal(t, "hi!", f.Apply("upper", "hi"))
	assert.Equal(t, "hi", f.Apply("other", "hi"))

	var none provider.Formatters
	assert.Equal(t, "hi", none.Apply("upper", "hi"))
}
