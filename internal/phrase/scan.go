package phrase

import "strings"

// scanner is a byte cursor over one phrase. It never lowercases the source,
// so offsets and captured literals always refer to the original text;
// keyword comparison is done case-insensitively on extracted words.
type scanner struct {
	src string
	pos int
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\r', '\n':
			s.pos++
		default:
			return
		}
	}
}

// eof reports whether only whitespace remains.
func (s *scanner) eof() bool {
	s.skipSpace()
	return s.pos >= len(s.src)
}

// peekWord returns the next word and its start offset without advancing.
func (s *scanner) peekWord() (string, int) {
	s.skipSpace()
	start := s.pos
	end := start
	for end < len(s.src) && isWordChar(s.src[end]) {
		end++
	}
	return s.src[start:end], start
}

// readWord consumes the next word and returns it with its start offset.
func (s *scanner) readWord() (string, int) {
	word, start := s.peekWord()
	s.pos = start + len(word)
	return word, start
}

// readIdent consumes a variable-name identifier: a letter or underscore
// followed by word characters.
func (s *scanner) readIdent() (string, *ParseError) {
	word, start := s.peekWord()
	if word == "" || (word[0] >= '0' && word[0] <= '9') {
		return "", errAt(start, "<identifier>")
	}
	s.pos = start + len(word)
	return word, nil
}

// readNumber consumes an unsigned integer literal.
func (s *scanner) readNumber() (int, *ParseError) {
	s.skipSpace()
	start := s.pos
	n := 0
	for s.pos < len(s.src) && s.src[s.pos] >= '0' && s.src[s.pos] <= '9' {
		n = n*10 + int(s.src[s.pos]-'0')
		s.pos++
	}
	if s.pos == start {
		return 0, errAt(start, "<number>")
	}
	return n, nil
}

// readQuoted consumes a double-quoted string literal. Escapes: `\"` yields a
// quote, `\\` yields a backslash; any other backslash pair is kept verbatim
// so expression text survives untouched.
func (s *scanner) readQuoted() (string, *ParseError) {
	s.skipSpace()
	if s.pos >= len(s.src) || s.src[s.pos] != '"' {
		return "", errAt(s.pos, `"<string>"`)
	}
	s.pos++
	var b strings.Builder
	for s.pos < len(s.src) {
		ch := s.src[s.pos]
		if ch == '\\' && s.pos+1 < len(s.src) {
			next := s.src[s.pos+1]
			switch next {
			case '"', '\\':
				b.WriteByte(next)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			s.pos += 2
			continue
		}
		if ch == '"' {
			s.pos++
			return b.String(), nil
		}
		b.WriteByte(ch)
		s.pos++
	}
	return "", errAt(s.pos, `closing '"'`)
}

// expectByte consumes one exact byte or fails with the given expectation.
func (s *scanner) expectByte(ch byte, expected string) *ParseError {
	s.skipSpace()
	if s.pos >= len(s.src) || s.src[s.pos] != ch {
		return errAt(s.pos, expected)
	}
	s.pos++
	return nil
}

func isWordChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_'
}

func keywordIs(word, keyword string) bool {
	return strings.EqualFold(word, keyword)
}
