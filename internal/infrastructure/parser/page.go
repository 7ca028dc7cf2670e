package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const defaultMaxTextRunes = 12000

// Page is the readable part of an article page.
type Page struct {
	Title  string
	Text   string
	Images []string
}

// PageReader converts article markup into markdown suitable for a prompt.
type PageReader struct {
	maxTextRunes int
}

// NewPageReader caps extracted text at maxTextRunes; zero uses the default.
func NewPageReader(maxTextRunes int) *PageReader {
	if maxTextRunes <= 0 {
		maxTextRunes = defaultMaxTextRunes
	}
	return &PageReader{maxTextRunes: maxTextRunes}
}

// Read extracts the title, social preview images and main text of a page.
func (r *PageReader) Read(pageURL string, body []byte) (Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid page url %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse document: %w", err)
	}

	page := Page{
		Title:  pageTitle(doc),
		Images: socialImages(doc, base),
	}

	doc.Find("script, style, noscript, iframe, nav, header, footer, aside, form").Remove()

	content := doc.Find("article").First()
	if content.Length() == 0 {
		content = doc.Find("main").First()
	}
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	conv := md.NewConverter(base.Host, true, nil)
	page.Text = truncateRunes(conv.Convert(content), r.maxTextRunes)

	return page, nil
}

func pageTitle(doc *goquery.Document) string {
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(title) != "" {
		return collapseSpace(title)
	}
	return collapseSpace(doc.Find("title").First().Text())
}

func socialImages(doc *goquery.Document, base *url.URL) []string {
	var images []string
	seen := map[string]struct{}{}
	doc.Find(`meta[property="og:image"], meta[name="twitter:image"]`).Each(func(_ int, meta *goquery.Selection) {
		content, _ := meta.Attr("content")
		resolved, err := base.Parse(strings.TrimSpace(content))
		if err != nil || content == "" {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		images = append(images, abs)
	})
	return images
}
