// Package streak holds the pure derived-state computations: the streak
// calculator, the merge policy that folds in persisted non-derivable fields,
// and the milestone ladder.
//
// Nothing here performs I/O or reads the clock; callers pass "today" and
// "now" explicitly so every result is reproducible from the event log.
//
// A completion on today or yesterday (in the reference timezone) keeps a
// streak alive. The same rule is used by the validation layer's independent
// recomputation; changing it in one place only makes them diverge.
package streak
