// Package schema defines the HCL structures of the routine document: the
// routine blocks, their general switches, step declarations, and layered
// defaults. Decoding stops at hcl.Body boundaries for every open-ended
// section (settings, defaults, enable flags) so that unknown attributes
// pass through untouched and formula-valued attributes stay unevaluated
// until a binding environment exists.
package schema
