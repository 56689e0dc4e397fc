package registry

import "crypto/rand"

// codeAlphabet deliberately drops 0/O and 1/I so codes survive being
// read aloud or copied from a projector.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	roomCodeLength       = 6
	tournamentCodeLength = 8
)

// newCode draws length characters by rejection sampling so every glyph
// is equally likely regardless of the alphabet size.
func newCode(length int) string {
	limit := 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, length)
	for len(out) < length {
		chunk := make([]byte, length-len(out))
		rand.Read(chunk)
		for _, b := range chunk {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out)
}
