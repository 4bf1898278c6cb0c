// Package seq holds the nucleotide-level preprocessing that turns sequence
// strings into one-hot matrices: alphabets, sanitising, reverse complements,
// one-hot encoding and dinucleotide shuffling.
package seq

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
)

// Alphabet is an ordered set of symbols; a symbol's index is its one-hot channel.
type Alphabet struct {
	Name       string
	Symbols    string
	Complement string // Complement[i] pairs with Symbols[i]
}

var (
	DNA = Alphabet{Name: "DNA", Symbols: "ACGT", Complement: "TGCA"}
	RNA = Alphabet{Name: "RNA", Symbols: "ACGU", Complement: "UGCA"}
)

// AlphabetByName resolves "DNA" or "RNA", case-insensitively.
func AlphabetByName(name string) (Alphabet, error) {
	switch strings.ToUpper(name) {
	case "", "DNA":
		return DNA, nil
	case "RNA":
		return RNA, nil
	default:
		return Alphabet{}, fmt.Errorf("unknown alphabet %q", name)
	}
}

// Size is the number of channels.
func (a Alphabet) Size() int { return len(a.Symbols) }

// Index returns the channel of symbol c, or -1.
func (a Alphabet) Index(c byte) int {
	return strings.IndexByte(a.Symbols, byte(unicode.ToUpper(rune(c))))
}

// complementIndex maps channel i to the channel of its complement.
func (a Alphabet) complementIndex(i int) int {
	return strings.IndexByte(a.Symbols, a.Complement[i])
}

// Sanitize uppercases s and strips whitespace.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// ReverseComplement returns the reverse complement of s. Symbols outside the
// alphabet are kept as-is, in reversed position.
func ReverseComplement(s string, a Alphabet) string {
	s = strings.ToUpper(s)

	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		if j := strings.IndexByte(a.Symbols, c); j >= 0 {
			c = a.Complement[j]
		}
		buf.WriteByte(c)
	}

	b := buf.Bytes()
	for i := 0; i < len(b)/2; i++ {
		j := len(b) - i - 1
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
