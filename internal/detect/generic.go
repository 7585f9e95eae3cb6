package detect

import (
	"github.com/dprod-run/dprod/internal/domain"
)

const genericStaticPort = 8080

// GenericDetector is the terminal detector: it always reports CanHandle=true
// and makes a best-effort guess from whatever loose signals remain, so the
// engine can never fail to produce a Config (§4.1, §7 DetectionError).
type GenericDetector struct{}

func NewGenericDetector() *GenericDetector { return &GenericDetector{} }

func (d *GenericDetector) Name() string { return "generic" }

func (d *GenericDetector) CanHandle(tree *Tree) bool { return true }

func (d *GenericDetector) GetConfig(tree *Tree) (domain.Config, error) {
	switch {
	case len(tree.FilesWithExtension(".py")) > 0 && tree.HasFile("requirements.txt"):
		return domain.Config{
			Tech:        domain.TechPython,
			BuildCmd:    "pip install -r requirements.txt",
			RunCmd:      "python " + d.pythonEntryGuess(tree),
			Port:        defaultPythonPort,
			InstallPath: "/app",
		}, nil
	case len(tree.FilesWithExtension(".js")) > 0 && tree.HasFile("package.json"):
		return domain.Config{
			Tech:        domain.TechNodeJS,
			BuildCmd:    "npm install",
			RunCmd:      "node " + d.jsEntryGuess(tree),
			Port:        defaultNodePort,
			InstallPath: "/app",
		}, nil
	default:
		return domain.Config{
			Tech:        domain.TechStatic,
			Port:        genericStaticPort,
			InstallPath: "/usr/share/nginx/html",
		}, nil
	}
}

func (d *GenericDetector) pythonEntryGuess(tree *Tree) string {
	if f := tree.FirstExisting(pythonEntryFiles...); f != "" {
		return f
	}
	if files := tree.FilesWithExtension(".py"); len(files) > 0 {
		return files[0]
	}
	return "main.py"
}

func (d *GenericDetector) jsEntryGuess(tree *Tree) string {
	if f := tree.FirstExisting("index.js", "server.js", "app.js"); f != "" {
		return f
	}
	if files := tree.FilesWithExtension(".js"); len(files) > 0 {
		return files[0]
	}
	return "index.js"
}
