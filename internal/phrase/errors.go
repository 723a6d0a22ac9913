package phrase

import (
	"fmt"
	"strings"

	"github.com/wendlabs/wend/pkg/schema"
)

// ParseError reports a phrase that did not match the grammar. Offset is the
// byte position in the original phrase where matching stopped; Expected
// lists the tokens that would have been accepted there.
type ParseError struct {
	Phrase   string
	Offset   int
	Expected []string
}

func (e *ParseError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("parse error at offset %d in %q", e.Offset, e.Phrase)
	}
	return fmt.Sprintf("parse error at offset %d in %q: expected %s",
		e.Offset, e.Phrase, strings.Join(e.Expected, " or "))
}

// WendError converts the parse failure into the structured error form,
// preserving the offset and expected-token set in the details.
func (e *ParseError) WendError() *schema.WendError {
	return schema.NewError(schema.ErrCodeParse, e.Error()).WithDetails(map[string]any{
		"phrase":   e.Phrase,
		"offset":   e.Offset,
		"expected": e.Expected,
	})
}

func errAt(offset int, expected ...string) *ParseError {
	return &ParseError{Offset: offset, Expected: expected}
}
