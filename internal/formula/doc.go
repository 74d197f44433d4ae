// Package formula evaluates the restricted arithmetic expressions embedded
// in routine settings. The grammar is HCL native expression syntax narrowed
// at evaluation time: numeric literals, bound symbols, the four arithmetic
// operators, parentheses, and the whitelisted functions min and max.
//
// Formulas come from hand-edited configuration files, so evaluation is
// deliberately sandboxed: the eval context holds nothing but the caller's
// bindings and the two whitelisted functions, and evaluation is a pure
// function of (formula, bindings).
package formula
