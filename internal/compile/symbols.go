package compile

import "strings"

// symbolSpelling covers characters the cp1252 core fonts cannot show. Latin-1
// symbols such as ±, ×, ÷, °, ² and µ are left alone because cp1252 has them.
var symbolSpelling = strings.NewReplacer(
	// Greek
	"α", "alpha", "β", "beta", "γ", "gamma", "δ", "delta", "ε", "epsilon",
	"ζ", "zeta", "η", "eta", "θ", "theta", "ι", "iota", "κ", "kappa",
	"λ", "lambda", "μ", "mu", "ν", "nu", "ξ", "xi", "π", "pi", "ρ", "rho",
	"σ", "sigma", "ς", "sigma", "τ", "tau", "υ", "upsilon", "φ", "phi",
	"χ", "chi", "ψ", "psi", "ω", "omega",
	"Γ", "Gamma", "Δ", "Delta", "Θ", "Theta", "Λ", "Lambda", "Ξ", "Xi",
	"Π", "Pi", "Σ", "Sigma", "Φ", "Phi", "Ψ", "Psi", "Ω", "Omega",
	// relations and operators
	"≤", "<=", "≥", ">=", "≠", "!=", "≈", "~=", "≡", "==", "∝", " prop. to ",
	"−", "-", "∓", "-/+", "∗", "*", "⋅", "·", "∘", "o",
	"√", "sqrt", "∛", "cbrt", "∞", "infinity", "∑", "sum", "∏", "product",
	"∫", "integral", "∮", "contour integral", "∂", "d", "∇", "nabla",
	"∈", " in ", "∉", " not in ", "⊂", " subset of ", "⊆", " subset of ", "∪", " union ", "∩", " intersect ",
	"∅", "{}", "∀", "for all ", "∃", "there exists ", "¬", "not ", "∧", " and ", "∨", " or ",
	"⊕", " xor ", "∴", "therefore ", "∵", "because ",
	// arrows
	"→", "->", "←", "<-", "↔", "<->", "⇒", "=>", "⇐", "<=", "⇔", "<=>", "↑", "^", "↓", "v",
	// super- and subscripts outside Latin-1
	"⁰", "^0", "⁴", "^4", "⁵", "^5", "⁶", "^6", "⁷", "^7", "⁸", "^8", "⁹", "^9", "ⁿ", "^n", "⁻", "^-", "⁺", "^+",
	"₀", "_0", "₁", "_1", "₂", "_2", "₃", "_3", "₄", "_4", "₅", "_5", "₆", "_6", "₇", "_7", "₈", "_8", "₉", "_9",
	// punctuation and marks
	"✓", "[x]", "✔", "[x]", "✗", "[ ]", "✘", "[ ]", "★", "*", "☆", "*",
	"▪", "•", "◦", "-", "‣", "•", "∙", "·",
)

func spellSymbols(s string) string {
	return symbolSpelling.Replace(s)
}
