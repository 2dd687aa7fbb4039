package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	// script and style contents are never meant to be read
	if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// Normalize removes non-printable characters and collapses whitespace.
func Normalize(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	out := strings.Trim(newStr.String(), " \t\r\n")
	return innerWhitespace.ReplaceAllString(out, " ")
}

// LooksLikeHTML reports whether a body is an html document rather than data.
func LooksLikeHTML(body []byte) bool {
	trimmed := bytes.ToLower(bytes.TrimSpace(body))
	return bytes.HasPrefix(trimmed, []byte("<!doctype html")) ||
		bytes.HasPrefix(trimmed, []byte("<html"))
}

// Summary returns the title and the readable text of the body of an html
// document, the way a gateway error page would be shown to a person.
func Summary(body []byte) (title string, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	title = Normalize(doc.Find("title").First().Text())
	for _, node := range doc.Find("body").Nodes {
		text += GetText(node)
	}
	return title, Normalize(text), nil
}
