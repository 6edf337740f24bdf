package parser

import "strings"

// Format renders a tree back to program text with no ignored characters.
// Parse(Format(p)) is equal to p.
func Format(p Program) string {
	var sb strings.Builder
	format(&sb, p)
	return sb.String()
}

func format(sb *strings.Builder, p Program) {
	for _, ins := range p {
		if ins.Op == OpLoop {
			sb.WriteRune(CharLoopOpen)
			format(sb, ins.Body)
			sb.WriteRune(CharLoopClose)
			continue
		}
		sb.WriteRune(ins.Op.Char())
	}
}
