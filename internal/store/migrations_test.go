package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptStatements(t *testing.T) {
	script := `
-- leading comment
CREATE TABLE a (id TEXT);

-- a comment between statements
CREATE INDEX idx_a ON a(id);

-- trailing comment only
`
	stmts := scriptStatements(script)
	assert.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE INDEX idx_a")
}

func TestScriptStatementsEmpty(t *testing.T) {
	assert.Empty(t, scriptStatements(""))
	assert.Empty(t, scriptStatements("-- only a comment"))
	assert.Empty(t, scriptStatements(";;;"))
}
