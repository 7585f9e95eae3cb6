package detect

import (
	"github.com/dprod-run/dprod/internal/domain"
)

const defaultPythonPort = 8000

var pythonManifests = []string{"requirements.txt", "pyproject.toml", "setup.py", "Pipfile"}
var pythonEntryFiles = []string{"app.py", "main.py", "manage.py", "server.py"}

// PythonDetector matches bundles carrying a recognized Python manifest or
// entry-point filename.
type PythonDetector struct{}

func NewPythonDetector() *PythonDetector { return &PythonDetector{} }

func (d *PythonDetector) Name() string { return "python" }

func (d *PythonDetector) CanHandle(tree *Tree) bool {
	if tree.HasAnyFile(pythonManifests...) {
		return true
	}
	return tree.HasAnyFile(pythonEntryFiles...)
}

func (d *PythonDetector) GetConfig(tree *Tree) (domain.Config, error) {
	cfg := domain.Config{
		Tech:        domain.TechPython,
		BuildCmd:    d.buildCommand(tree),
		Port:        defaultPythonPort,
		InstallPath: "/app",
	}
	cfg.RunCmd = d.runCommand(tree)
	return cfg, nil
}

func (d *PythonDetector) buildCommand(tree *Tree) string {
	switch {
	case tree.HasFile("requirements.txt"):
		return "pip install -r requirements.txt"
	case tree.HasFile("pyproject.toml"):
		return "pip install ."
	case tree.HasFile("Pipfile"):
		return "pipenv install --deploy"
	case tree.HasFile("setup.py"):
		return "pip install ."
	default:
		return ""
	}
}

func (d *PythonDetector) runCommand(tree *Tree) string {
	switch {
	case tree.HasFile("manage.py"):
		return "python manage.py runserver 0.0.0.0:8000"
	case tree.ContainsDependency("requirements.txt", "fastapi") ||
		tree.ContainsDependency("requirements.txt", "uvicorn"):
		entry := "main"
		if tree.HasFile("app.py") && !tree.HasFile("main.py") {
			entry = "app"
		}
		return "uvicorn " + entry + ":app --host 0.0.0.0 --port 8000"
	case tree.ContainsDependency("requirements.txt", "flask"):
		entry := d.entryFile(tree)
		return "python " + entry
	case tree.HasFile("main.py"):
		return "python main.py"
	case tree.HasFile("app.py"):
		return "python app.py"
	case tree.HasFile("server.py"):
		return "python server.py"
	default:
		return "python main.py"
	}
}

func (d *PythonDetector) entryFile(tree *Tree) string {
	if f := tree.FirstExisting(pythonEntryFiles...); f != "" {
		return f
	}
	return "main.py"
}
