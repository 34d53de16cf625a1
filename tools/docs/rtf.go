package docs

import (
	"fmt"
	"strings"
)

// RTF font sizes are half-points: \fs34 is 17pt.
const (
	rtfH1Size   = 34
	rtfH2Size   = 30
	rtfH3Size   = 26
	rtfBodySize = 24
)

// buildRTF renders styled lines as an RTF document, the format legacy word
// processors open as .doc.
func buildRTF(lines []docLine) []byte {
	var b strings.Builder
	b.WriteString(`{\rtf1\ansi\deff0{\fonttbl{\f0\fswiss Helvetica;}}` + "\n")
	for _, l := range lines {
		text := escapeRTF(l.Text)
		switch l.Style {
		case styleH1:
			fmt.Fprintf(&b, `{\b\fs%d %s}\par`+"\n", rtfH1Size, text)
		case styleH2:
			fmt.Fprintf(&b, `{\b\fs%d %s}\par`+"\n", rtfH2Size, text)
		case styleH3:
			fmt.Fprintf(&b, `{\b\fs%d %s}\par`+"\n", rtfH3Size, text)
		case styleBullet:
			fmt.Fprintf(&b, `{\fs%d \bullet  %s}\par`+"\n", rtfBodySize, text)
		case styleCode:
			fmt.Fprintf(&b, `{\f0\fs%d %s}\par`+"\n", rtfBodySize, text)
		default:
			fmt.Fprintf(&b, `{\fs%d %s}\par`+"\n", rtfBodySize, text)
		}
	}
	b.WriteString("}\n")
	return []byte(b.String())
}

// escapeRTF escapes control characters and encodes non-ASCII runes as
// unicode control words.
func escapeRTF(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r > 127:
			fmt.Fprintf(&b, `\u%d?`, int16(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
