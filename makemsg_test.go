package ulog

import "strconv"

// makeMsg implements spec.md §8's MakeMsg(len, seed): concatenate "<seed> "
// tokens with seed incrementing, insert '\n' after every 20th token,
// append a final '\n', then truncate to exactly length bytes.
func makeMsg(length, seed int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, 0, length+32)
	n := seed
	token := 0
	for len(buf) <= length {
		buf = append(buf, strconv.Itoa(n)...)
		buf = append(buf, ' ')
		n++
		token++
		if token%20 == 0 {
			buf = append(buf, '\n')
		}
	}
	buf = append(buf, '\n')
	if len(buf) > length {
		buf = buf[:length]
	}
	return string(buf)
}
