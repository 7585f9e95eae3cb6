package detect

import (
	"github.com/dprod-run/dprod/internal/domain"
)

const defaultStaticPort = 80

var staticIndexCandidates = []string{
	"index.html",
	"public/index.html",
	"dist/index.html",
	"build/index.html",
}

// StaticDetector matches bundles that expose a reachable index.html and
// have no framework manifest earlier in the dispatch order to claim them.
type StaticDetector struct{}

func NewStaticDetector() *StaticDetector { return &StaticDetector{} }

func (d *StaticDetector) Name() string { return "static" }

func (d *StaticDetector) CanHandle(tree *Tree) bool {
	return tree.HasAnyFile(staticIndexCandidates...)
}

func (d *StaticDetector) GetConfig(tree *Tree) (domain.Config, error) {
	cfg := domain.Config{
		Tech:        domain.TechStatic,
		Port:        defaultStaticPort,
		InstallPath: "/usr/share/nginx/html",
	}
	if tree.HasFile("package.json") {
		var pkg nodePackageJSON
		if err := tree.ReadJSON("package.json", &pkg); err == nil {
			if build, ok := pkg.Scripts["build"]; ok && build != "" {
				cfg.BuildCmd = "npm ci && npm run build"
			}
		}
	}
	return cfg, nil
}
