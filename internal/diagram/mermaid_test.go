package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wendlabs/wend/pkg/schema"
)

func TestRenderMermaidShapes(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name:  "shapes",
		Start: "sh",
		States: []schema.StateDefinition{
			{ID: "sh", Action: `run command "make"`, Transitions: []schema.TransitionDefinition{{To: "wa"}}},
			{ID: "wa", Action: `wait 5 seconds`, Transitions: []schema.TransitionDefinition{{To: "pr"}}},
			{ID: "pr", Action: `execute prompt "review"`, Transitions: []schema.TransitionDefinition{{To: "sub"}}},
			{ID: "sub", Action: `run workflow "child"`, End: true},
		},
	}

	out := RenderMermaid(Build(def))

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% shapes")
	assert.Contains(t, out, `__start__(("start"))`)
	assert.Contains(t, out, `sh["sh"]`)
	assert.Contains(t, out, `wa(["wa"])`)
	assert.Contains(t, out, `pr{{"pr"}}`)
	assert.Contains(t, out, `sub[["sub"]]`)
}

func TestRenderMermaidEdges(t *testing.T) {
	out := RenderMermaid(Build(deployDefinition()))

	assert.Contains(t, out, "__start__ --> build")
	assert.Contains(t, out, `build -->|"exit_code == 0"| ship`)
	assert.Contains(t, out, "build --> cleanup")
	assert.Contains(t, out, "ship --> done")
}

func TestRenderMermaidClasses(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name:  "classes",
		Start: "work",
		States: []schema.StateDefinition{
			{ID: "work", Action: `run command "make"`, Transitions: []schema.TransitionDefinition{{To: "stop"}}},
			{ID: "stop", Action: `abort "halted"`, End: true},
		},
	}

	out := RenderMermaid(Build(def))

	assert.Contains(t, out, "classDef terminal")
	assert.Contains(t, out, "class stop terminal")
	assert.Contains(t, out, "class stop abort")
	assert.NotContains(t, out, "class work terminal")
}

func TestRenderMermaidPathOverlay(t *testing.T) {
	m := Build(deployDefinition())
	m.ApplyPath(RunPath{
		Visits:     map[string]int{"build": 2, "cleanup": 1},
		FinalState: "cleanup",
		Failed:     true,
	})

	out := RenderMermaid(m)

	assert.Contains(t, out, `build["build (x2)"]`)
	assert.Contains(t, out, "class build visited")
	assert.Contains(t, out, "class cleanup failed")
	assert.NotContains(t, out, "class ship visited")
}

func TestRenderMermaidSanitizesIDs(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name:  "sanitize",
		Start: "build-app",
		States: []schema.StateDefinition{
			{ID: "build-app", Action: `run command "make"`, Transitions: []schema.TransitionDefinition{{To: "report.send"}}},
			{ID: "report.send", Action: `log "done"`, End: true},
		},
	}

	out := RenderMermaid(Build(def))

	// IDs are sanitized, labels keep the original spelling.
	assert.Contains(t, out, `build_app["build-app"]`)
	assert.Contains(t, out, `report_send["report.send"]`)
	assert.Contains(t, out, "build_app --> report_send")
}

func TestRenderMermaidEscapesGuardText(t *testing.T) {
	def := &schema.WorkflowDefinition{
		Name:  "escape",
		Start: "a",
		States: []schema.StateDefinition{
			{ID: "a", Action: `log "x"`, Transitions: []schema.TransitionDefinition{
				{When: `status == "ok" || retry`, To: "b"},
			}},
			{ID: "b", Action: `log "y"`, End: true},
		},
	}

	out := RenderMermaid(Build(def))

	// Double quotes become single, pipes become slashes.
	assert.Contains(t, out, `a -->|"status == 'ok' // retry"| b`)
}
