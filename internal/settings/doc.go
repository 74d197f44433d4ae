// Package settings resolves layered routine configuration into concrete
// per-step parameter sets. Scopes cascade from a step's own settings block
// through routine defaults to global defaults; the most specific
// definition wins and unset keys inherit from the next broader scope.
// Values are a tagged literal-or-formula variant; formulas are evaluated
// by the formula package against a per-step binding environment.
package settings
