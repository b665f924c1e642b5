// Package trigram derives lowercase 3-byte windows from token text for fuzzy matching.
//
// The same extraction runs at build time and at query time; a trigram is
// packed into a uint32 as a<<16 | b<<8 | c, which is also its posting key.
package trigram

// MinTokenLength is the shortest token that yields any trigram.
const MinTokenLength = 3

// Pack packs three bytes into a trigram key.
func Pack(a, b, c byte) uint32 {
	return uint32(a)<<16 | uint32(b)<<8 | uint32(c)
}

// Unpack splits a trigram key into its three bytes.
func Unpack(t uint32) (a, b, c byte) {
	return byte(t >> 16), byte(t >> 8), byte(t)
}

// String renders a trigram key as its three bytes.
func String(t uint32) string {
	a, b, c := Unpack(t)
	return string([]byte{a, b, c})
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// Append appends the trigrams of token to dst, in order, duplicates included.
// Tokens shorter than MinTokenLength append nothing.
func Append(dst []uint32, token []byte) []uint32 {
	if len(token) < MinTokenLength {
		return dst
	}
	a, b := lower(token[0]), lower(token[1])
	for i := 2; i < len(token); i++ {
		c := lower(token[i])
		dst = append(dst, Pack(a, b, c))
		a, b = b, c
	}
	return dst
}

// Extract returns the trigrams of token.
func Extract(token []byte) []uint32 {
	if len(token) < MinTokenLength {
		return nil
	}
	return Append(make([]uint32, 0, len(token)-2), token)
}

// Unique returns the distinct trigrams of token in first-seen order.
func Unique(token []byte) []uint32 {
	all := Extract(token)
	if len(all) < 2 {
		return all
	}
	seen := make(map[uint32]struct{}, len(all))
	out := all[:0]
	for _, t := range all {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
