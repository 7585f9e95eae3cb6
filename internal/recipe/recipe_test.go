package recipe

import (
	"strings"
	"testing"

	"github.com/dprod-run/dprod/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeNodeCopiesManifestBeforeSource(t *testing.T) {
	cfg := domain.Config{
		Tech:     domain.TechNodeJS,
		BuildCmd: "npm ci --only=production",
		RunCmd:   "node server.js",
		Port:     3000,
	}
	r, err := Synthesize(cfg)
	require.NoError(t, err)

	manifestIdx := indexOf(t, r.Dockerfile, "COPY package*.json")
	installIdx := indexOf(t, r.Dockerfile, "RUN npm ci")
	sourceIdx := indexOf(t, r.Dockerfile, "COPY . .")
	assert.Less(t, manifestIdx, installIdx)
	assert.Less(t, installIdx, sourceIdx)
	assert.Contains(t, r.Dockerfile, "EXPOSE 3000")
}

func TestSynthesizeSetsEnvironmentVariables(t *testing.T) {
	cfg := domain.Config{
		Tech:        domain.TechPython,
		RunCmd:      "python main.py",
		Port:        8000,
		Environment: map[string]string{"DEBUG": "false", "API_KEY": "secret"},
	}
	r, err := Synthesize(cfg)
	require.NoError(t, err)
	assert.Contains(t, r.Dockerfile, `ENV API_KEY="secret"`)
	assert.Contains(t, r.Dockerfile, `ENV DEBUG="false"`)
}

func TestSynthesizeStaticGeneratesServerBlock(t *testing.T) {
	cfg := domain.Config{Tech: domain.TechStatic, Port: 80}
	r, err := Synthesize(cfg)
	require.NoError(t, err)
	assert.Contains(t, r.Dockerfile, "nginx:alpine")
	require.Contains(t, r.AuxFiles, "dprod.nginx.conf")
	assert.Contains(t, r.AuxFiles["dprod.nginx.conf"], "listen 80")
}

func TestSynthesizeStaticWithBuildStepUsesMultiStage(t *testing.T) {
	cfg := domain.Config{Tech: domain.TechStatic, Port: 80, BuildCmd: "npm ci && npm run build"}
	r, err := Synthesize(cfg)
	require.NoError(t, err)
	assert.Contains(t, r.Dockerfile, "AS builder")
	assert.Contains(t, r.Dockerfile, "COPY --from=builder")
	assert.Equal(t, 1, strings.Count(r.Dockerfile, "FROM nginx:alpine"), "server stage should appear exactly once, no unused leading stage")
}

func TestSynthesizeGoUsesWorkingDirectoryDefault(t *testing.T) {
	cfg := domain.Config{Tech: domain.TechGo, Port: 8080, BuildCmd: "go mod download"}
	r, err := Synthesize(cfg)
	require.NoError(t, err)
	assert.Contains(t, r.Dockerfile, "WORKDIR /app")
	assert.Contains(t, r.Dockerfile, "go build -o app")
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := -1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "expected to find %q in dockerfile", needle)
	return idx
}
