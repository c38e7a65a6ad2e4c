package mime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want DataURI
		ok   bool
	}{
		{
			name: "base64 png",
			uri:  "data:image/png;base64,AAAA",
			want: DataURI{MIMEType: "image/png", Encoding: "base64", Data: "AAAA"},
			ok:   true,
		},
		{
			name: "uppercase mime type",
			uri:  "data:IMAGE/JPEG;base64,/9j/",
			want: DataURI{MIMEType: "image/jpeg", Encoding: "base64", Data: "/9j/"},
			ok:   true,
		},
		{
			name: "no encoding",
			uri:  "data:text/plain,hello",
			want: DataURI{MIMEType: "text/plain", Data: "hello"},
			ok:   true,
		},
		{name: "missing comma", uri: "data:image/png;base64", ok: false},
		{name: "empty payload", uri: "data:image/png;base64,", ok: false},
		{name: "not a data uri", uri: "cid:abc@pm.me", ok: false},
		{name: "empty", uri: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDataURI(tt.uri)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDataURI_Base64(t *testing.T) {
	assert.Equal(t, "AAAA", DataURI{Encoding: "base64", Data: "AA\nAA"}.Base64())
	assert.Equal(t, "aGVsbG8=", DataURI{Data: "hello"}.Base64())
}

func TestWrapBase64(t *testing.T) {
	s := strings.Repeat("A", 150)

	wrapped := WrapBase64(s, 64)
	lines := strings.Split(wrapped, "\r\n")
	require.Len(t, lines, 3)
	assert.Len(t, lines[0], 64)
	assert.Len(t, lines[1], 64)
	assert.Len(t, lines[2], 22)

	assert.Equal(t, wrapped, WrapBase64(wrapped, 64))
	assert.Equal(t, "AAAA", WrapBase64("AAAA", 64))
	assert.Equal(t, strings.Repeat("A", 64), WrapBase64(strings.Repeat("A", 64), 64))
}

func TestHTMLToPlainText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "divs and breaks",
			html: "<div>line 1</div><br><div>line 2 </div>",
			want: "line 1\r\n\r\nline 2\r\n",
		},
		{
			name: "paragraphs and inline elements",
			html: "<p>Hello <b>world</b></p><p>Bye</p>",
			want: "Hello world\r\nBye\r\n",
		},
		{
			name: "style and script skipped",
			html: "<html><head><style>p{}</style></head><body><script>x()</script><p>text</p></body></html>",
			want: "text\r\n",
		},
		{
			name: "entities decoded",
			html: "<p>a &amp; b &lt; c</p>",
			want: "a & b < c\r\n",
		},
		{
			name: "whitespace collapsed",
			html: "<p>a \n\t  b</p>",
			want: "a b\r\n",
		},
		{
			name: "empty",
			html: "<div></div>",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToPlainText(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
