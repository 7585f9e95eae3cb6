package detect

import (
	"strings"

	"github.com/dprod-run/dprod/internal/domain"
)

const defaultGoPort = 8080

// GoDetector matches bundles with a go.mod or go.sum manifest.
type GoDetector struct{}

func NewGoDetector() *GoDetector { return &GoDetector{} }

func (d *GoDetector) Name() string { return "go" }

func (d *GoDetector) CanHandle(tree *Tree) bool {
	return tree.HasAnyFile("go.mod", "go.sum")
}

// GetConfig picks an entry point in priority order: main.go at the root,
// then the first cmd/<subdir>/main.go, then app.go or server.go.
func (d *GoDetector) GetConfig(tree *Tree) (domain.Config, error) {
	entry := tree.FirstExisting("main.go")
	if entry == "" {
		entry = d.firstCmdMain(tree)
	}
	if entry == "" {
		entry = tree.FirstExisting("app.go", "server.go")
	}
	if entry == "" {
		entry = "main.go"
	}

	return domain.Config{
		Tech:        domain.TechGo,
		BuildCmd:    "go mod download",
		RunCmd:      "go run " + entry,
		Port:        defaultGoPort,
		InstallPath: "/app",
	}, nil
}

func (d *GoDetector) firstCmdMain(tree *Tree) string {
	for _, f := range tree.Files {
		if strings.HasPrefix(f, "cmd/") && strings.HasSuffix(f, "/main.go") {
			return f
		}
	}
	return ""
}
