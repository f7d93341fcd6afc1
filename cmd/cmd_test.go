package cmd

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeftor/qmp-macro/internal/engine"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/utils"
)

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("10, 20,30,40")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 40, 60), r)

	r, err = parseRegion("")
	require.NoError(t, err)
	assert.True(t, r.Empty())

	for _, bad := range []string{"1,2,3", "a,b,c,d", "0,0,0,10", "-1,0,5,5"} {
		_, err := parseRegion(bad)
		assert.Error(t, err, bad)
	}
}

func TestPatternPath(t *testing.T) {
	imagesDir = "imgs"
	defer func() { imagesDir = "" }()

	assert.Equal(t, filepath.Join("imgs", "ok.png"), patternPath("ok"))
	assert.Equal(t, filepath.Join("imgs", "ok.ppm"), patternPath("ok.ppm"))
	assert.Equal(t, filepath.Join("sub", "ok.png"), patternPath(filepath.Join("sub", "ok")))
}

func TestParseIndex(t *testing.T) {
	i, err := parseIndex("3")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	_, err = parseIndex("0")
	assert.Error(t, err)
	_, err = parseIndex("x")
	assert.Error(t, err)
}

func TestSampleProgramIsValid(t *testing.T) {
	p, err := sampleProgram()
	require.NoError(t, err)

	assert.Equal(t, []string{macro.DefaultFunctionName, "Login"}, p.Names())
	assert.Equal(t, macro.DefaultFunctionName, p.Current())

	result := macro.Validate(p, nil)
	assert.True(t, result.Valid, "%v", result.Errors)

	var buf bytes.Buffer
	require.NoError(t, macro.Encode(&buf, p, macro.FormatYAML))
	back, err := macro.Decode(&buf, macro.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, p.Names(), back.Names())
}

func TestEditFunctionRestoresCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.json")
	require.NoError(t, editProgram(path, true, func(p *macro.Program) error {
		return p.CreateFunction("Login")
	}))
	require.NoError(t, editProgram(path, false, func(p *macro.Program) error {
		return p.SetCurrent(macro.DefaultFunctionName)
	}))

	stepFunc = "Login"
	defer func() { stepFunc = "" }()
	require.NoError(t, editFunction(path, func(p *macro.Program) error {
		assert.Equal(t, "Login", p.Current())
		_, err := p.AddStep(macro.Step{Action: macro.CallFunction{Callee: macro.DefaultFunctionName}})
		return err
	}))

	p, err := loadProgram(path, false)
	require.NoError(t, err)
	assert.Equal(t, macro.DefaultFunctionName, p.Current())
	steps, ok := p.Steps("Login")
	require.True(t, ok)
	assert.Len(t, steps, 1)
}

func TestEditKeepsLegacyOpLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	doc := `{"current_func": "A", "functions": {"A": [{"op": "Değişken Ata", "var_name": "n", "var_type": "int", "var_value": "1", "next_ok": null, "next_fail": null}], "B": []}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	require.NoError(t, editProgram(path, false, func(p *macro.Program) error {
		return p.SetCurrent("B")
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"op": "Değişken Ata"`)
	assert.Contains(t, string(data), `"current_func": "B"`)
}

func TestLoadProgramMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := loadProgram(path, false)
	require.Error(t, err)
	assert.Equal(t, int(utils.ExitCodeFileSystem), utils.ExitCode(err))

	p, err := loadProgram(path, true)
	require.NoError(t, err)
	assert.Equal(t, []string{macro.DefaultFunctionName}, p.Names())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOutcomeError(t *testing.T) {
	assert.NoError(t, outcomeError(engine.Outcome{State: engine.Completed}))

	err := outcomeError(engine.Outcome{State: engine.Failed, Err: assert.AnError})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int(utils.ExitCodeGeneral), utils.ExitCode(err))

	err = outcomeError(engine.Outcome{State: engine.Aborted, Err: assert.AnError})
	assert.Equal(t, int(utils.ExitCodeTimeout), utils.ExitCode(err))
}
