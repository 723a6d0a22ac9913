// Package phrase implements the action phrase grammar: one short textual
// phrase per workflow state, parsed into a typed action from the closed
// union in pkg/schema.
//
// Grammar (keywords case-insensitive, full consumption required):
//
//	Execute|Run prompt "<name>" [with k="v" ...]
//	Execute|Run command "<cmd>" [in "<dir>"] [timeout <N> seconds|minutes] [with k="v" ...]
//	Execute|Run workflow "<name>" [with k="v" ...]
//	Delegate to "<name>" [with k="v" ...]
//	Wait <N> seconds|minutes|hours
//	Wait for user
//	Log [error|warning|info] "<message>"
//	Set <name>="<value-or-expression>"
//	Abort "<reason>"
//
// Expression text (the quoted Set value, transition guards) is captured as
// an opaque span and never interpreted here; evaluation belongs to the
// expression evaluator at execution time.
package phrase

import (
	"strings"
	"time"

	"github.com/wendlabs/wend/pkg/schema"
)

// Keyword sets in declaration order. Rules are tried first-to-last and
// error expectations mirror this order.
var (
	topKeywords    = []string{"execute", "run", "wait", "log", "set", "delegate", "abort"}
	executeTargets = []string{"prompt", "command", "workflow"}
)

// Parse converts one phrase into its typed action. Identical input always
// yields an identical action; whitespace between tokens is insignificant.
// Failures are *ParseError carrying the phrase, byte offset and expected
// tokens.
func Parse(text string) (schema.Action, error) {
	s := &scanner{src: text}
	action, perr := parsePhrase(s)
	if perr != nil {
		perr.Phrase = text
		return nil, perr
	}
	return action, nil
}

func parsePhrase(s *scanner) (schema.Action, *ParseError) {
	word, start := s.readWord()
	switch {
	case keywordIs(word, "execute") || keywordIs(word, "run"):
		return parseExecute(s)
	case keywordIs(word, "wait"):
		return parseWait(s)
	case keywordIs(word, "log"):
		return parseLog(s)
	case keywordIs(word, "set"):
		return parseSet(s)
	case keywordIs(word, "delegate"):
		return parseDelegate(s)
	case keywordIs(word, "abort"):
		return parseAbort(s)
	default:
		return nil, errAt(start, topKeywords...)
	}
}

// parseExecute routes the Execute/Run head to its target rule.
func parseExecute(s *scanner) (schema.Action, *ParseError) {
	word, start := s.readWord()
	switch {
	case keywordIs(word, "prompt"):
		return parsePrompt(s)
	case keywordIs(word, "command"):
		return parseCommand(s)
	case keywordIs(word, "workflow"):
		return parseWorkflow(s)
	default:
		return nil, errAt(start, executeTargets...)
	}
}

func parsePrompt(s *scanner) (schema.Action, *ParseError) {
	name, perr := s.readQuoted()
	if perr != nil {
		return nil, perr
	}
	args, perr := finishArgs(s)
	if perr != nil {
		return nil, perr
	}
	return schema.Prompt{Name: name, Args: args}, nil
}

// parseCommand parses the shell rule. Optional clauses keep a fixed order:
// in, then timeout, then with; the with clause runs to end of phrase and
// its pairs form the environment overlay.
func parseCommand(s *scanner) (schema.Action, *ParseError) {
	cmd, perr := s.readQuoted()
	if perr != nil {
		return nil, perr
	}
	act := schema.ShellExecute{Command: cmd}

	allowed := []string{"in", "timeout", "with"}
	for !s.eof() {
		word, start := s.peekWord()
		idx := clauseIndex(allowed, word)
		if idx < 0 {
			return nil, errAt(start, append(append([]string{}, allowed...), "end of phrase")...)
		}
		s.readWord()
		switch allowed[idx] {
		case "in":
			dir, perr := s.readQuoted()
			if perr != nil {
				return nil, perr
			}
			act.WorkingDir = dir
		case "timeout":
			n, perr := s.readNumber()
			if perr != nil {
				return nil, perr
			}
			unit, ustart := s.readWord()
			d, ok := timeoutUnit(unit)
			if !ok {
				return nil, errAt(ustart, "seconds", "minutes")
			}
			act.Timeout = time.Duration(n) * d
		case "with":
			env, perr := parseArgPairs(s)
			if perr != nil {
				return nil, perr
			}
			act.Env = env
			return act, nil
		}
		allowed = allowed[idx+1:]
	}
	return act, nil
}

func parseWorkflow(s *scanner) (schema.Action, *ParseError) {
	name, perr := s.readQuoted()
	if perr != nil {
		return nil, perr
	}
	args, perr := finishArgs(s)
	if perr != nil {
		return nil, perr
	}
	return schema.SubWorkflow{Name: name, Args: args}, nil
}

func parseDelegate(s *scanner) (schema.Action, *ParseError) {
	word, start := s.readWord()
	if !keywordIs(word, "to") {
		return nil, errAt(start, "to")
	}
	return parseWorkflow(s)
}

func parseWait(s *scanner) (schema.Action, *ParseError) {
	word, _ := s.peekWord()
	if keywordIs(word, "for") {
		s.readWord()
		next, start := s.readWord()
		if !keywordIs(next, "user") {
			return nil, errAt(start, "user")
		}
		if perr := requireEnd(s); perr != nil {
			return nil, perr
		}
		return schema.Wait{UntilSignalled: true}, nil
	}

	n, perr := s.readNumber()
	if perr != nil {
		return nil, errAt(perr.Offset, "<number>", "for")
	}
	unit, start := s.readWord()
	d, ok := waitUnit(unit)
	if !ok {
		return nil, errAt(start, "seconds", "minutes", "hours")
	}
	if perr := requireEnd(s); perr != nil {
		return nil, perr
	}
	return schema.Wait{Duration: time.Duration(n) * d}, nil
}

func parseLog(s *scanner) (schema.Action, *ParseError) {
	level := schema.LogInfo
	word, start := s.peekWord()
	if word != "" {
		switch {
		case keywordIs(word, "error"):
			level = schema.LogError
			s.readWord()
		case keywordIs(word, "warning"):
			level = schema.LogWarning
			s.readWord()
		case keywordIs(word, "info"):
			s.readWord()
		default:
			return nil, errAt(start, "error", "warning", "info", `"<message>"`)
		}
	}
	msg, perr := s.readQuoted()
	if perr != nil {
		return nil, perr
	}
	if perr := requireEnd(s); perr != nil {
		return nil, perr
	}
	return schema.Log{Level: level, Message: msg}, nil
}

func parseSet(s *scanner) (schema.Action, *ParseError) {
	name, perr := s.readIdent()
	if perr != nil {
		return nil, perr
	}
	if perr := s.expectByte('=', "="); perr != nil {
		return nil, perr
	}
	value, perr := s.readQuoted()
	if perr != nil {
		return nil, perr
	}
	if perr := requireEnd(s); perr != nil {
		return nil, perr
	}
	return schema.SetVariable{Name: name, Value: schema.ExpressionHandle{Raw: value}}, nil
}

func parseAbort(s *scanner) (schema.Action, *ParseError) {
	reason, perr := s.readQuoted()
	if perr != nil {
		return nil, perr
	}
	if perr := requireEnd(s); perr != nil {
		return nil, perr
	}
	return schema.Abort{Reason: reason}, nil
}

// finishArgs parses the optional trailing with-clause and then requires end
// of phrase.
func finishArgs(s *scanner) (map[string]string, *ParseError) {
	if s.eof() {
		return nil, nil
	}
	word, start := s.peekWord()
	if !keywordIs(word, "with") {
		return nil, errAt(start, "with", "end of phrase")
	}
	s.readWord()
	return parseArgPairs(s)
}

// parseArgPairs reads one or more k="v" pairs through end of phrase.
// Duplicate keys keep the last value, matching context overwrite semantics.
func parseArgPairs(s *scanner) (map[string]string, *ParseError) {
	args := make(map[string]string)
	for {
		key, perr := s.readIdent()
		if perr != nil {
			return nil, perr
		}
		if perr := s.expectByte('=', "="); perr != nil {
			return nil, perr
		}
		val, perr := s.readQuoted()
		if perr != nil {
			return nil, perr
		}
		args[key] = val
		if s.eof() {
			return args, nil
		}
	}
}

func requireEnd(s *scanner) *ParseError {
	if s.eof() {
		return nil
	}
	return errAt(s.pos, "end of phrase")
}

// clauseIndex finds word among the still-allowed clause keywords.
func clauseIndex(allowed []string, word string) int {
	for i, kw := range allowed {
		if keywordIs(word, kw) {
			return i
		}
	}
	return -1
}

func waitUnit(word string) (time.Duration, bool) {
	switch strings.ToLower(word) {
	case "second", "seconds":
		return time.Second, true
	case "minute", "minutes":
		return time.Minute, true
	case "hour", "hours":
		return time.Hour, true
	}
	return 0, false
}

func timeoutUnit(word string) (time.Duration, bool) {
	switch strings.ToLower(word) {
	case "second", "seconds":
		return time.Second, true
	case "minute", "minutes":
		return time.Minute, true
	}
	return 0, false
}
