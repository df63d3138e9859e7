// Package textutil provides text clean-up for captions and output file names.
//
// Caption text arrives from a shell or chat command and may contain
// decomposed Unicode, stray control characters, and irregular whitespace.
// NormalizeCaption folds all of that into the canonical form the layout
// engine measures. SanitizeToken derives filesystem-safe tokens from source
// names for delivered output files.
package textutil
