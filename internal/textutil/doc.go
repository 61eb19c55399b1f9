// Package textutil sanitizes user-visible strings for filesystem and HTTP
// header use: media titles become attachment filenames (with an ASCII
// fallback), and identifiers become filesystem tokens.
package textutil
