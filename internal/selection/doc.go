// Package selection turns a caller's format intent into an ordered fallback
// plan of structured tiers.
//
// Tiers are plain values (video constraint, audio constraint, container) so
// they can be inspected, evaluated locally against a catalog, and tested
// without string parsing. Directive.Expression renders the engine's selector
// syntax and is only called at the engine boundary.
package selection
