package mime

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	dataURIPattern    = regexp.MustCompile(`(?s)^data:([^;,]+)(?:;([^,]+))?,(.*)$`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// DataURI is the parsed form of a data: URI.
type DataURI struct {
	MIMEType string
	Encoding string
	Data     string
}

// Base64 returns the payload as standard base64.
func (d DataURI) Base64() string {
	if strings.EqualFold(d.Encoding, "base64") {
		return stripWhitespace(d.Data)
	}

	return base64.StdEncoding.EncodeToString([]byte(d.Data))
}

// ParseDataURI splits a data:<mime>;<encoding>,<payload> URI. It returns
// false for anything that does not match, including an empty payload.
func ParseDataURI(uri string) (DataURI, bool) {
	m := dataURIPattern.FindStringSubmatch(strings.TrimSpace(uri))
	if m == nil || m[3] == "" {
		return DataURI{}, false
	}

	return DataURI{MIMEType: strings.ToLower(m[1]), Encoding: m[2], Data: m[3]}, true
}

// WrapBase64 hard-wraps s every width characters with CRLF. Existing
// whitespace is dropped first so re-wrapping is stable.
func WrapBase64(s string, width int) string {
	s = stripWhitespace(s)
	if width <= 0 || len(s) <= width {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*(len(s)/width))

	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)

	return b.String()
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

var skippedElements = map[string]bool{
	"head": true, "script": true, "style": true, "title": true,
}

// HTMLToPlainText renders an HTML body as plain text with CRLF line endings.
func HTMLToPlainText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	renderText(&buf, doc.Find("body"))

	lines := strings.Split(buf.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}

	text := strings.TrimRight(strings.Join(out, "\r\n"), "\r\n")
	if text == "" {
		return "", nil
	}

	return text + "\r\n", nil
}

func renderText(buf *bytes.Buffer, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)

		switch {
		case name == "#text":
			buf.WriteString(whitespacePattern.ReplaceAllString(c.Text(), " "))
		case name == "br":
			buf.WriteByte('\n')
		case skippedElements[name]:
		case blockElements[name]:
			breakLine(buf)
			renderText(buf, c)
			breakLine(buf)
		default:
			renderText(buf, c)
		}
	})
}

func breakLine(buf *bytes.Buffer) {
	if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
}
