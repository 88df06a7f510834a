// Package htmlx holds the small set of HTML helpers used to build digest
// emails: an escaped-HTML string type, link and list builders, comment
// auto-paragraphing and HTML to plain-text conversion.
package htmlx
