// Package sym defines canonical glyphs used in mappa CLI output and logs.
// These symbols are stable across CLI help text and log fields.
package sym

// Topic Maps constructs.
const (
	Map   = "◈" // topic map
	Topic = "●" // topic
	Assoc = "⟷" // association
)

// Operations.
const (
	Import    = "⨳" // dataset import into a topic map
	Bootstrap = "⍟" // get-or-create-then-populate sequence
	AM        = "≡" // am: configuration and system settings
)

// System infrastructure symbols.
const (
	DB = "⊔" // database/storage layer
)
