// Package conv provides checked integer conversions for values read from
// checkpoints, where counts and dimensions are untrusted.
package conv
