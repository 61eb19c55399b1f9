// Package catalog fetches and normalizes the rendition catalog for a media URL.
//
// Raw engine formats become Rendition values; entries that carry neither audio
// nor video are dropped. When the catalog has audio, one virtual rendition is
// appended that stands for "best audio re-encoded to the configured audio
// format". It reuses the identifier of the best audio rendition and is marked
// Virtual so callers can request extraction rather than a direct fetch.
package catalog
