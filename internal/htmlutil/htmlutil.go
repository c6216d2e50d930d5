// Package htmlutil holds the goquery helpers shared by the page parsers.
package htmlutil

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parse loads an HTML document.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// Text returns the whitespace-normalized text of the first node in s.
func Text(s *goquery.Selection) string {
	return NormSpace(s.First().Text())
}

// NormSpace collapses whitespace runs to single spaces and trims the ends.
func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// NormHeader normalizes a table label: NormSpace, trailing colon removed, lower-cased.
func NormHeader(s string) string {
	s = NormSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveURL makes href absolute against base. Unparseable input is returned as is.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
