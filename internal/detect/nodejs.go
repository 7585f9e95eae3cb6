package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dprod-run/dprod/internal/domain"
)

// nodePackageJSON mirrors the subset of package.json fields detection
// cares about. Extra fields are ignored by encoding/json.
type nodePackageJSON struct {
	Main         string            `json:"main"`
	Port         int               `json:"port"`
	Scripts      map[string]string `json:"scripts"`
	Dependencies map[string]string `json:"dependencies"`
}

const defaultNodePort = 3000

var portFlagPattern = regexp.MustCompile(`--port[= ](\d+)`)

// NodeJSDetector matches bundles with a package.json manifest.
type NodeJSDetector struct{}

func NewNodeJSDetector() *NodeJSDetector { return &NodeJSDetector{} }

func (d *NodeJSDetector) Name() string { return "nodejs" }

func (d *NodeJSDetector) CanHandle(tree *Tree) bool {
	return tree.HasFile("package.json")
}

func (d *NodeJSDetector) GetConfig(tree *Tree) (domain.Config, error) {
	var pkg nodePackageJSON
	if err := tree.ReadJSON("package.json", &pkg); err != nil {
		return domain.Config{}, fmt.Errorf("parsing package.json: %w", err)
	}

	install := "npm ci --only=production"
	var buildCmd string
	if build, ok := pkg.Scripts["build"]; ok && build != "" {
		buildCmd = fmt.Sprintf("%s && npm run build", install)
	} else {
		buildCmd = install
	}

	runCmd := d.runCommand(pkg)
	port := d.port(pkg, runCmd)

	return domain.Config{
		Tech:        domain.TechNodeJS,
		BuildCmd:    buildCmd,
		RunCmd:      runCmd,
		Port:        port,
		InstallPath: "/app",
	}, nil
}

func (d *NodeJSDetector) runCommand(pkg nodePackageJSON) string {
	if _, isNest := pkg.Dependencies["@nestjs/core"]; isNest {
		return "node dist/main"
	}
	if start, ok := pkg.Scripts["start"]; ok && start != "" {
		return start
	}
	main := pkg.Main
	if main == "" {
		main = "index.js"
	}
	return "node " + main
}

func (d *NodeJSDetector) port(pkg nodePackageJSON, runCmd string) int {
	if pkg.Port > 0 {
		return pkg.Port
	}
	if m := portFlagPattern.FindStringSubmatch(runCmd); m != nil {
		var p int
		if _, err := fmt.Sscanf(m[1], "%d", &p); err == nil && p > 0 {
			return p
		}
	}
	for _, script := range pkg.Scripts {
		if m := portFlagPattern.FindStringSubmatch(script); m != nil {
			var p int
			if _, err := fmt.Sscanf(m[1], "%d", &p); err == nil && p > 0 {
				return p
			}
		}
	}
	if strings.Contains(runCmd, "dprod.port") {
		// Embedded directive without a parsed value falls back to default;
		// operators should prefer the explicit --port form.
		return defaultNodePort
	}
	return defaultNodePort
}
