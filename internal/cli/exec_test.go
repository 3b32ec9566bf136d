package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkgraph/internal/ast"
	"github.com/roach88/linkgraph/internal/harness"
)

func TestPlanCommand(t *testing.T) {
	opts := newTestOptions(t, "json")
	out := mustExecute(t, opts, NewPlanCommand, "Person", "--where", "Age:gt:30", "--order-by", "-Age")

	res := decodeData[PlanResult](t, out)
	assert.Equal(t, "Person", res.ModelType)
	assert.Equal(t, 1, res.Arity)
	assert.Equal(t, 100, res.PageSize)
	assert.Len(t, res.ShapeHash, 64)
	assert.NotEmpty(t, res.Command)
	assert.True(t, strings.HasPrefix(res.Tree, "Page"), res.Tree)
}

func TestPlanShapeIgnoresConstants(t *testing.T) {
	opts := newTestOptions(t, "json")
	a := decodeData[PlanResult](t, mustExecute(t, opts, NewPlanCommand, "Person", "--where", "Age:gt:30"))
	b := decodeData[PlanResult](t, mustExecute(t, opts, NewPlanCommand, "Person", "--where", "Age:gt:50"))

	assert.Equal(t, a.ShapeHash, b.ShapeHash)
	assert.NotEqual(t, a.Command, b.Command)
}

func TestPlanThenExecQuery(t *testing.T) {
	opts := newTestOptions(t, "json")
	ada := putPerson(t, opts, "Ada", 36)
	putPerson(t, opts, "Bob", 20)

	plan := decodeData[PlanResult](t, mustExecute(t, opts, NewPlanCommand, "Person", "--where", "Age:gt:30"))
	out := mustExecute(t, opts, NewExecCommand, "query", "Person", plan.Command)

	res := decodeData[ExecResult](t, out)
	assert.Equal(t, VerbQuery, res.Verb)
	assert.Equal(t, []string{ada}, keys(res.Models))
	assert.Empty(t, res.Next)
}

func TestExecSaveAndDelete(t *testing.T) {
	opts := newTestOptions(t, "json")
	reg, _, err := loadRegistry(opts.Settings().Schema.Path)
	require.NoError(t, err)
	codec := ast.NewCodec(reg)

	m, err := reg.Create("Person")
	require.NoError(t, err)
	require.NoError(t, harness.SetFields(m, map[string]any{"Name": "Ada", "Age": 36}))
	save, err := codec.Format(&ast.Save{ModelType: "Person", Model: m})
	require.NoError(t, err)

	res := decodeData[ExecResult](t, mustExecute(t, opts, NewExecCommand, "save", "Person", save))
	require.Len(t, res.Models, 1)
	saved := res.Models[0]
	assert.True(t, strings.HasPrefix(saved.Key, "Person/"))

	stored, err := reg.Unmarshal("Person", saved.Body)
	require.NoError(t, err)
	del, err := codec.Format(&ast.Delete{ModelType: "Person", Model: stored})
	require.NoError(t, err)

	res = decodeData[ExecResult](t, mustExecute(t, opts, NewExecCommand, "delete", "Person", del))
	require.NotNil(t, res.Deleted)
	assert.Equal(t, int64(1), *res.Deleted)
}

func TestExecRejectsWrongType(t *testing.T) {
	opts := newTestOptions(t, "json")
	plan := decodeData[PlanResult](t, mustExecute(t, opts, NewPlanCommand, "Person"))

	out, err := execute(t, opts, NewExecCommand, "query", "Knows", plan.Command)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeExecute)
}

func TestExecArguments(t *testing.T) {
	opts := newTestOptions(t, "text")

	_, err := execute(t, opts, NewExecCommand, "merge", "Person", "AAAA")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, opts, NewExecCommand, "query", "Person", "not base64!")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E203]")
}

func TestInspectCommand(t *testing.T) {
	opts := newTestOptions(t, "json")
	plan := decodeData[PlanResult](t, mustExecute(t, opts, NewPlanCommand, "Person", "--where", "Name:eq:Ada"))

	res := decodeData[InspectResult](t, mustExecute(t, opts, NewInspectCommand, plan.Command))
	assert.Equal(t, "Page", res.Kind)
	assert.Positive(t, res.Bytes)
	assert.Equal(t, plan.Tree, res.Tree)
	assert.Contains(t, res.Tree, "Ada")
}

func TestInspectStdin(t *testing.T) {
	opts := newTestOptions(t, "json")
	plan := decodeData[PlanResult](t, mustExecute(t, opts, NewPlanCommand, "Person"))

	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(opts)
	cmd.SetIn(strings.NewReader(plan.Command + "\n"))
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"-"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "Page", decodeData[InspectResult](t, buf.String()).Kind)
}

func TestInspectInvalid(t *testing.T) {
	opts := newTestOptions(t, "text")
	out, err := execute(t, opts, NewInspectCommand, "AAAA")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E201]")
}
