// Package classify turns curve fit quality into a call.
//
// Two independent results are produced for every curve:
//
//   - a graded class from an ordered, first-match rule chain over the fit
//     r², the sigmoid steepness and the SNR (STRONG_POSITIVE through
//     NEGATIVE), with a confidence score and an edge-case flag;
//   - a strict POS/NEG/REDO result from the amplitude, an S-curve shape
//     predicate, CQJ validity and the anomaly set.
//
// The rule chain is a table. Order is significant: a curve that satisfies
// the SUSPICIOUS rule is SUSPICIOUS even if it would also satisfy
// STRONG_POSITIVE. Confidence is base(rule) + (1 - base)·margin, where
// margin is the mean normalised distance by which the matched alternative
// clears its limits. Rules with a base at or below EdgeCaseConfidence
// therefore need a real margin before they stop being edge cases.
//
// No SQL, I/O or package state is allowed in this package.
package classify
