package game

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Question is one prompt shown to a player. Answer holds the canonical
// expected string and is never serialized to clients.
type Question struct {
	Index  int    `json:"index"`
	Value  string `json:"value"`
	Answer string `json:"-"`
}

// Generator produces random questions for a conversion kind. It wraps its
// own rand source so rooms can be seeded deterministically in tests.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with the given value.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomGenerator returns a generator seeded from the clock.
func NewRandomGenerator() *Generator {
	return NewGenerator(time.Now().UnixNano())
}

// Next produces the next question for the conversion kind and mode.
// Nibble-sprint narrows binary and hex prompts to a single nibble.
func (g *Generator) Next(conv Conversion, mode Mode) Question {
	switch conv.Family() {
	case FamilyBinary:
		n := g.intn(conv, mode)
		return Question{Value: strconv.Itoa(n), Answer: formatBinary(n, mode)}
	case FamilyHex:
		n := g.intn(conv, mode)
		return Question{Value: strconv.Itoa(n), Answer: fmt.Sprintf("%02X", n)}
	case FamilyIPv6:
		n := g.rng.Intn(0x10000)
		return Question{Value: strconv.Itoa(n), Answer: fmt.Sprintf("%04X", n)}
	case FamilyIPv4:
		octets := [4]int{
			1 + g.rng.Intn(223),
			g.rng.Intn(256),
			g.rng.Intn(256),
			1 + g.rng.Intn(254),
		}
		parts := make([]string, 4)
		bits := make([]string, 4)
		for i, o := range octets {
			parts[i] = strconv.Itoa(o)
			bits[i] = fmt.Sprintf("%08b", o)
		}
		return Question{
			Value:  strings.Join(parts, "."),
			Answer: strings.Join(bits, "."),
		}
	}
	// Unknown kinds are rejected at config validation; an unanswerable
	// prompt here would wedge the room.
	return Question{Value: "0", Answer: "0"}
}

func (g *Generator) intn(conv Conversion, mode Mode) int {
	if mode == ModeNibbleSprint {
		return g.rng.Intn(16)
	}
	return g.rng.Intn(256)
}

func formatBinary(n int, mode Mode) string {
	if mode == ModeNibbleSprint {
		return fmt.Sprintf("%04b", n)
	}
	return fmt.Sprintf("%08b", n)
}

// Normalize folds player input into the canonical answer shape: trim,
// lowercase, the single token "2" aliased to "0" (numpad entry), and for
// hex kinds an optional 0x prefix stripped, uppercased and zero-padded to
// the canonical width. Never fails; junk input stays junk.
func Normalize(input string, conv Conversion) string {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "2" {
		s = "0"
	}
	switch conv.Family() {
	case FamilyHex:
		s = strings.TrimPrefix(s, "0x")
		s = padHex(strings.ToUpper(s), 2)
	case FamilyIPv6:
		s = strings.TrimPrefix(s, "0x")
		s = padHex(strings.ToUpper(s), 4)
	}
	return s
}

func padHex(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// IsCorrect reports whether the raw input matches the canonical answer
// for the conversion kind. Hex comparison is case-insensitive by way of
// normalization; binary and dotted binary compare byte for byte.
func IsCorrect(input, answer string, conv Conversion) bool {
	switch conv.Family() {
	case FamilyHex, FamilyIPv6:
		return strings.EqualFold(Normalize(input, conv), answer)
	default:
		return Normalize(input, conv) == answer
	}
}
