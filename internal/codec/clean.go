package codec

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SnippetLength is the maximum length of a snippet in runes, ellipsis included.
const SnippetLength = 100

var (
	imageMarker = regexp.MustCompile(`^\[image:[^\]]*\]$`)
	bareFile    = regexp.MustCompile(`(?i)^[^\s/\\]+\.(` +
		`png|jpe?g|gif|bmp|webp|heic|heif|tiff?|svg|ico|` +
		`pdf|docx?|xlsx?|pptx?|txt|rtf|csv|odt|ods|odp|pages|numbers|key|` +
		`zip|rar|7z|tar|gz|tgz|bz2|` +
		`mp3|wav|m4a|aac|ogg|flac|` +
		`mp4|mov|avi|mkv|webm|m4v|wmv)$`)
	attribution = regexp.MustCompile(`^On\s.+\swrote:$`)
	sentFrom    = regexp.MustCompile(`(?i)^sent from my\s`)
)

// CleanBody drops lines that are attachment placeholders leaking into the
// body text: "[image: ...]" markers and lines holding nothing but a file name.
func CleanBody(body string) string {
	if body == "" {
		return body
	}

	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if imageMarker.MatchString(trimmed) || bareFile.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n"))
}

// Snippet derives the one-line preview of a plain body: quoted text, reply
// attributions and signatures are removed, whitespace is flattened and the
// result is cut to SnippetLength runes.
func Snippet(body string) string {
	text := flatten(stripQuotes(body))
	if text == "" {
		text = flatten(body)
	}
	return Truncate(text, SnippetLength)
}

// Truncate cuts text to at most limit runes, ending with an ellipsis when
// anything was dropped.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit-1]), " ") + "…"
}

func stripQuotes(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if attribution.MatchString(trimmed) || trimmed == "--" {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}

	for len(kept) > 0 {
		last := strings.TrimSpace(kept[len(kept)-1])
		if last != "" && !sentFrom.MatchString(last) {
			break
		}
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, "\n")
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
