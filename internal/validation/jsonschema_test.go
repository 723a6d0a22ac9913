package validation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendlabs/wend/pkg/schema"
)

func TestNewJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.NotNil(t, v.workflowSchema)
}

func TestValidateDefinition_Nil(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(nil)
	require.Error(t, err)

	wendErr, ok := err.(*schema.WendError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, wendErr.Code)
	assert.Contains(t, wendErr.Message, "nil")
}

func TestValidateDefinition_MinimalValid(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := &schema.WorkflowDefinition{
		Name:  "minimal",
		Start: "only",
		States: []schema.StateDefinition{
			{ID: "only", Action: `Log "done"`},
		},
	}
	assert.NoError(t, v.ValidateDefinition(def))
}

func TestValidateDefinition_FullValid(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := &schema.WorkflowDefinition{
		Name:        "release",
		Description: "Build, check and announce a release.",
		Start:       "build",
		Vars: map[string]any{
			"version":  "1.4.0",
			"attempts": 0,
			"notify":   true,
		},
		States: []schema.StateDefinition{
			{
				ID:     "build",
				Action: `Execute command "make release" in "/srv/build" timeout 10 minutes`,
				Transitions: []schema.TransitionDefinition{
					{When: `shell_exit_code == 0`, To: "announce"},
					{To: "report_failure"},
				},
			},
			{
				ID:     "announce",
				Action: `Execute prompt "release/announce" with version="{{version}}"`,
				End:    true,
			},
			{
				ID:     "report_failure",
				Action: `Log error "release build failed"`,
				End:    true,
			},
		},
	}
	assert.NoError(t, v.ValidateDefinition(def))
}

func TestValidateDefinition_MissingRequired(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	for name, def := range map[string]*schema.WorkflowDefinition{
		"no name":      {Start: "a", States: []schema.StateDefinition{{ID: "a", Action: `Log "x"`}}},
		"no start":     {Name: "wf", States: []schema.StateDefinition{{ID: "a", Action: `Log "x"`}}},
		"no states":    {Name: "wf", Start: "a"},
		"empty states": {Name: "wf", Start: "a", States: []schema.StateDefinition{}},
	} {
		t.Run(name, func(t *testing.T) {
			err := v.ValidateDefinition(def)
			require.Error(t, err)

			wendErr, ok := err.(*schema.WendError)
			require.True(t, ok)
			assert.Equal(t, schema.ErrCodeValidation, wendErr.Code)
		})
	}
}

func TestValidateDefinition_StateMissingAction(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := &schema.WorkflowDefinition{
		Name:  "wf",
		Start: "a",
		States: []schema.StateDefinition{
			{ID: "a"},
		},
	}
	err = v.ValidateDefinition(def)
	require.Error(t, err)

	wendErr, ok := err.(*schema.WendError)
	require.True(t, ok)
	violations, ok := wendErr.Details["violations"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0], "/states/0")
}

func TestValidateDefinition_TransitionMissingTarget(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := &schema.WorkflowDefinition{
		Name:  "wf",
		Start: "a",
		States: []schema.StateDefinition{
			{
				ID:     "a",
				Action: `Log "x"`,
				Transitions: []schema.TransitionDefinition{
					{When: "checks == true"},
				},
			},
		},
	}
	err = v.ValidateDefinition(def)
	require.Error(t, err)

	wendErr, ok := err.(*schema.WendError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, wendErr.Code)
}

func TestValidateDefinition_ViolationsAggregated(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	// Empty name and empty state id fail together.
	def := &schema.WorkflowDefinition{
		Name:  "",
		Start: "a",
		States: []schema.StateDefinition{
			{ID: "", Action: `Log "x"`},
		},
	}
	err = v.ValidateDefinition(def)
	require.Error(t, err)

	wendErr, ok := err.(*schema.WendError)
	require.True(t, ok)
	violations, ok := wendErr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
}

func TestValidateDefinition_Concurrent(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := &schema.WorkflowDefinition{
		Name:  "concurrent",
		Start: "only",
		States: []schema.StateDefinition{
			{ID: "only", Action: `Log "done"`},
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.ValidateDefinition(def))
		}()
	}
	wg.Wait()
}
