// Package recipe synthesizes a textual container build recipe (a
// Dockerfile plus any generated server config) from a detected Config.
package recipe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dprod-run/dprod/internal/domain"
)

// Recipe is the synthesized build context content: a Dockerfile plus any
// auxiliary files (e.g. a generated nginx server block) that must be
// written alongside it before BuildImage is called.
type Recipe struct {
	Dockerfile  string
	AuxFiles    map[string]string // relative path -> content, written into the build context
	BaseImage   string
}

const defaultInstallPath = "/app"

// Synthesize turns a Config into a Recipe following the tech-class
// selection table (§4.2). The recipe always copies manifests before
// copying the rest of the source tree, for Docker layer-cache locality,
// exposes the configured port, and sets every environment entry.
func Synthesize(cfg domain.Config) (Recipe, error) {
	switch cfg.Tech {
	case domain.TechNodeJS:
		return synthesizeNode(cfg), nil
	case domain.TechPython:
		return synthesizePython(cfg), nil
	case domain.TechGo:
		return synthesizeGo(cfg), nil
	case domain.TechStatic:
		return synthesizeStatic(cfg), nil
	default:
		return synthesizeUnknown(cfg), nil
	}
}

func installPath(cfg domain.Config) string {
	if cfg.InstallPath != "" {
		return cfg.InstallPath
	}
	return defaultInstallPath
}

func synthesizeNode(cfg domain.Config) Recipe {
	install := installPath(cfg)
	var b strings.Builder
	fmt.Fprintf(&b, "FROM node:18\n")
	fmt.Fprintf(&b, "WORKDIR %s\n", install)
	fmt.Fprintf(&b, "COPY package*.json ./\n")
	if cfg.BuildCmd != "" {
		fmt.Fprintf(&b, "RUN %s\n", cfg.BuildCmd)
	} else {
		fmt.Fprintf(&b, "RUN npm ci --only=production\n")
	}
	fmt.Fprintf(&b, "COPY . .\n")
	writeEnv(&b, cfg.Environment)
	fmt.Fprintf(&b, "EXPOSE %d\n", cfg.Port)
	fmt.Fprintf(&b, "CMD [%s]\n", shellForm(cfg.RunCmd))
	return Recipe{Dockerfile: b.String(), BaseImage: "node:18"}
}

func synthesizePython(cfg domain.Config) Recipe {
	install := installPath(cfg)
	var b strings.Builder
	fmt.Fprintf(&b, "FROM python:3.11-slim\n")
	fmt.Fprintf(&b, "WORKDIR %s\n", install)
	fmt.Fprintf(&b, "COPY requirements*.txt pyproject.toml* ./\n")
	if cfg.BuildCmd != "" {
		fmt.Fprintf(&b, "RUN %s\n", cfg.BuildCmd)
	}
	fmt.Fprintf(&b, "COPY . .\n")
	writeEnv(&b, cfg.Environment)
	fmt.Fprintf(&b, "EXPOSE %d\n", cfg.Port)
	fmt.Fprintf(&b, "CMD [%s]\n", shellForm(cfg.RunCmd))
	return Recipe{Dockerfile: b.String(), BaseImage: "python:3.11-slim"}
}

func synthesizeGo(cfg domain.Config) Recipe {
	install := installPath(cfg)
	var b strings.Builder
	fmt.Fprintf(&b, "FROM golang:1.21-alpine\n")
	fmt.Fprintf(&b, "WORKDIR %s\n", install)
	fmt.Fprintf(&b, "COPY go.mod go.sum* ./\n")
	fmt.Fprintf(&b, "RUN go mod download\n")
	fmt.Fprintf(&b, "COPY . .\n")
	fmt.Fprintf(&b, "RUN go build -o app .\n")
	writeEnv(&b, cfg.Environment)
	fmt.Fprintf(&b, "EXPOSE %d\n", cfg.Port)
	entry := "./app"
	if cfg.BuildCmd == "" && cfg.RunCmd != "" {
		entry = cfg.RunCmd
	}
	fmt.Fprintf(&b, "CMD [%s]\n", shellForm(entry))
	return Recipe{Dockerfile: b.String(), BaseImage: "golang:1.21-alpine"}
}

func synthesizeStatic(cfg domain.Config) Recipe {
	var b strings.Builder
	if cfg.BuildCmd != "" {
		// A build step is present only when a Node build manifest exposed a
		// build script; stage it, then copy the output into the server image.
		fmt.Fprintf(&b, "FROM node:18 AS builder\n")
		fmt.Fprintf(&b, "WORKDIR /build\n")
		fmt.Fprintf(&b, "COPY package*.json ./\n")
		fmt.Fprintf(&b, "RUN %s\n", cfg.BuildCmd)
		fmt.Fprintf(&b, "COPY . .\n")
		fmt.Fprintf(&b, "RUN npm run build\n\n")
		fmt.Fprintf(&b, "FROM nginx:alpine\n")
		fmt.Fprintf(&b, "COPY --from=builder /build/dist /usr/share/nginx/html\n")
	} else {
		fmt.Fprintf(&b, "FROM nginx:alpine\n")
		fmt.Fprintf(&b, "COPY . /usr/share/nginx/html\n")
	}
	fmt.Fprintf(&b, "COPY dprod.nginx.conf /etc/nginx/conf.d/default.conf\n")
	writeEnv(&b, cfg.Environment)
	fmt.Fprintf(&b, "EXPOSE %d\n", cfg.Port)
	fmt.Fprintf(&b, "CMD [\"nginx\", \"-g\", \"daemon off;\"]\n")

	return Recipe{
		Dockerfile: b.String(),
		BaseImage:  "nginx:alpine",
		AuxFiles: map[string]string{
			"dprod.nginx.conf": staticServerBlock(cfg.Port),
		},
	}
}

func synthesizeUnknown(cfg domain.Config) Recipe {
	install := installPath(cfg)
	var b strings.Builder
	fmt.Fprintf(&b, "FROM alpine:latest\n")
	fmt.Fprintf(&b, "WORKDIR %s\n", install)
	fmt.Fprintf(&b, "COPY . .\n")
	writeEnv(&b, cfg.Environment)
	fmt.Fprintf(&b, "EXPOSE %d\n", cfg.Port)
	runCmd := cfg.RunCmd
	if runCmd == "" {
		runCmd = "true"
	}
	fmt.Fprintf(&b, "CMD [%s]\n", shellForm(runCmd))
	return Recipe{Dockerfile: b.String(), BaseImage: "alpine:latest"}
}

func writeEnv(b *strings.Builder, env map[string]string) {
	if len(env) == 0 {
		return
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "ENV %s=%q\n", k, env[k])
	}
}

// shellForm renders a shell command string as a Dockerfile exec-form CMD
// argument list by delegating to /bin/sh, matching how the synthesized
// build/run commands (which may contain "&&") are expected to execute.
func shellForm(cmd string) string {
	return fmt.Sprintf("%q, %q, %q", "/bin/sh", "-c", cmd)
}

func staticServerBlock(port int) string {
	return fmt.Sprintf(`server {
    listen %d;
    server_name _;
    root /usr/share/nginx/html;
    index index.html;

    location / {
        try_files $uri $uri/ /index.html;
    }
}
`, port)
}
