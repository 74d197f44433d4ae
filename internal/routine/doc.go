// Package routine turns declarative calibration documents into executable
// plans. Loading decodes HCL routine files into a merged bundle; building
// expands one routine across its transitions and repeat counts into an
// ordered list of step nodes with settings chains, enable flags, success
// gates, metric branches, and fallback links attached. The resulting Plan
// is immutable; per-run progress lives in RunState.
package routine
