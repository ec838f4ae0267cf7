// Package parser turns message bodies into terminal- and chat-friendly text.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mixelka/inboxsync/pkg/models"
)

var (
	// zero-width and other invisible code points used by tracking templates
	invisibleRe  = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{180E}\x{2060}-\x{2064}\x{FE00}-\x{FE0F}]+`)
	blankRunRe   = regexp.MustCompile(`[^\S\n]+`)
	blockElement = "p, div, br, h1, h2, h3, h4, h5, h6, li, tr, blockquote"
)

// Link is an anchor found in an HTML body
type Link struct {
	Text string
	URL  string
}

// Body returns the readable text of msg: the plain body when the service
// stored one, else the HTML body rendered to text.
func Body(msg models.Message) (string, error) {
	if text := strings.TrimSpace(msg.BodyText); text != "" {
		return clean(text), nil
	}
	return HTMLToText(msg.BodyHTML)
}

// HTMLToText renders HTML as plain text, one block element per line
func HTMLToText(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, head, meta, link, title").Remove()
	doc.Find(blockElement).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return clean(doc.Text()), nil
}

// Links lists the anchors of an HTML body in document order, skipping
// mailto links and fragments.
func Links(html string) ([]Link, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}
		links = append(links, Link{
			Text: clean(s.Text()),
			URL:  href,
		})
	})
	return links, nil
}

// clean drops invisible characters, collapses horizontal whitespace and
// removes blank lines
func clean(text string) string {
	text = invisibleRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = blankRunRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Preview returns the first n runes of the readable body on one line
func Preview(msg models.Message, n int) string {
	body, err := Body(msg)
	if err != nil {
		return ""
	}
	flat := strings.Join(strings.Fields(body), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n]) + "..."
}
