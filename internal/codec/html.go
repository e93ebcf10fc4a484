package codec

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blankRuns  = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t\f\v]+`)
	htmlMarker = regexp.MustCompile(`(?i)<(html|body)[\s>]`)
)

// skipped elements contribute no text.
var skipped = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"title":  true,
}

// lineBreaks are end tags that terminate a line of text.
var lineBreaks = map[string]bool{
	"p":   true,
	"div": true,
	"li":  true,
	"tr":  true,
	"h1":  true,
	"h2":  true,
	"h3":  true,
	"h4":  true,
	"h5":  true,
	"h6":  true,
}

// LooksLikeHTML reports whether an untyped body is probably an HTML document.
func LooksLikeHTML(body string) bool {
	return htmlMarker.MatchString(body)
}

// HTMLToText flattens an HTML body into plain text. Line-breaking tags become
// newlines, all other tags are dropped and entities (named and numeric) are
// decoded once.
func HTMLToText(body string) string {
	var (
		out   strings.Builder
		depth int
	)

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a tokenizer failure; either way keep what we have.
			break
		}

		switch tt {
		case html.TextToken:
			if depth == 0 {
				out.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "br" {
				out.WriteByte('\n')
				continue
			}
			if skipped[tag] && tt == html.StartTagToken {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipped[tag] {
				if depth > 0 {
					depth--
				}
				continue
			}
			if lineBreaks[tag] {
				out.WriteByte('\n')
			}
		}
	}

	return tidyText(out.String())
}

// tidyText normalizes whitespace line by line and collapses runs of three or
// more newlines to two.
func tidyText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
