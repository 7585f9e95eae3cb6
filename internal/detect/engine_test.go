package detect

import (
	"testing"

	"github.com/dprod-run/dprod/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineS1NodeHappyPath(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json": `{"name":"a","scripts":{"start":"node server.js"}}`,
		"server.js":    "app.listen(3000)",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechNodeJS, cfg.Tech)
	assert.Equal(t, "npm ci --only=production", cfg.BuildCmd)
	assert.Equal(t, "node server.js", cfg.RunCmd)
	assert.Equal(t, 3000, cfg.Port)
}

func TestEngineS2PythonFastAPI(t *testing.T) {
	root := writeTree(t, map[string]string{
		"requirements.txt": "fastapi\nuvicorn\n",
		"main.py":          "app = object()",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechPython, cfg.Tech)
	assert.Equal(t, "pip install -r requirements.txt", cfg.BuildCmd)
	assert.Equal(t, "uvicorn main:app --host 0.0.0.0 --port 8000", cfg.RunCmd)
	assert.Equal(t, 8000, cfg.Port)
}

func TestEngineS3GoSingleMain(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":  "module example.com/app\n\ngo 1.22\n",
		"main.go": "package main\n\nfunc main() {}\n",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechGo, cfg.Tech)
	assert.Equal(t, "go mod download", cfg.BuildCmd)
	assert.Equal(t, "go run main.go", cfg.RunCmd)
	assert.Equal(t, 8080, cfg.Port)
}

func TestEngineS4StaticInDist(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dist/index.html": "<html></html>",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechStatic, cfg.Tech)
	assert.Equal(t, 80, cfg.Port)
}

func TestEngineS5MalformedPackageJSONFallsThrough(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json": `{"name": "a", "scripts": {` , // malformed JSON
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechStatic, cfg.Tech)
	assert.Equal(t, genericStaticPort, cfg.Port)
}

func TestEngineMissingScriptsStartAndMainDefaultsToIndexJS(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json": `{"name":"a"}`,
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechNodeJS, cfg.Tech)
	assert.Equal(t, "node index.js", cfg.RunCmd)
}

func TestEngineNestJSRecipeChosenOverStartScript(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json": `{"name":"a","scripts":{"start":"node dist/bootstrap"},"dependencies":{"@nestjs/core":"10.0.0"}}`,
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, "node dist/main", cfg.RunCmd)
}

func TestEngineStaticPreferredOverGenericWhenIndexHTMLUnderPublic(t *testing.T) {
	root := writeTree(t, map[string]string{
		"public/index.html": "<html></html>",
		"notes.txt":         "not a manifest of any kind",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechStatic, cfg.Tech)
}

func TestEnginePythonTakesPrecedenceOverStaticWhenBothSignalsPresent(t *testing.T) {
	// static must run after python in the fixed order (§4.1 rationale: an
	// HTML file may coexist with a framework), so a Flask app that also
	// ships a static index.html is still detected as python.
	root := writeTree(t, map[string]string{
		"app.py":             "from flask import Flask",
		"requirements.txt":   "flask\n",
		"public/index.html":  "<html></html>",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechPython, cfg.Tech)
}

func TestEngineDjangoManageDotPy(t *testing.T) {
	root := writeTree(t, map[string]string{
		"manage.py":        "#!/usr/bin/env python",
		"requirements.txt": "django\n",
	})

	cfg, err := NewEngine().Detect(root)
	require.NoError(t, err)
	assert.Equal(t, domain.TechPython, cfg.Tech)
	assert.Equal(t, "python manage.py runserver 0.0.0.0:8000", cfg.RunCmd)
}

func TestEngineDetectorOrderIsFixed(t *testing.T) {
	eng := NewEngine()
	require.Len(t, eng.detectors, 5)
	names := make([]string, len(eng.detectors))
	for i, d := range eng.detectors {
		names[i] = d.Name()
	}
	assert.Equal(t, []string{"nodejs", "python", "go", "static", "generic"}, names)
}

// failingDetector simulates a detector panicking on a malformed manifest,
// exercising the engine's recover-and-fall-through path.
type failingDetector struct{}

func (failingDetector) Name() string              { return "failing" }
func (failingDetector) CanHandle(tree *Tree) bool  { return true }
func (failingDetector) GetConfig(tree *Tree) (domain.Config, error) {
	panic("boom")
}

func TestEnginePanicRecoversAndFallsThrough(t *testing.T) {
	eng := NewEngineWithDetectors(failingDetector{}, NewGenericDetector())
	cfg, err := eng.Detect(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, domain.TechStatic, cfg.Tech)
}
