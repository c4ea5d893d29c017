// Package pkgdir locates the installed root directory of a named data package.
package pkgdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPackageNotFound is returned when a package root is not registered or is not a directory.
var ErrPackageNotFound = errors.New("package not found")

// Resolver maps a package name to its root directory.
type Resolver interface {
	PackageDir(name string) (string, error)
}

// EnvVar returns the environment variable that holds the root of package name,
// e.g. "ci_cpp_gen2" -> "CI_CPP_GEN2_DIR".
func EnvVar(name string) string {
	return strings.ToUpper(name) + "_DIR"
}

// Env resolves packages from <NAME>_DIR environment variables.
type Env struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (e Env) PackageDir(name string) (string, error) {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	dir := getenv(EnvVar(name))
	if dir == "" {
		return "", fmt.Errorf("%w: %s (%s is not set)", ErrPackageNotFound, name, EnvVar(name))
	}
	return checkDir(name, dir)
}

// Registry resolves packages from a fixed name -> directory table.
type Registry map[string]string

func (r Registry) PackageDir(name string) (string, error) {
	dir, ok := r[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is not registered", ErrPackageNotFound, name)
	}
	return checkDir(name, dir)
}

// Chain tries each resolver in order. A resolver that reports ErrPackageNotFound
// passes the lookup on; any other error stops it.
type Chain []Resolver

func (c Chain) PackageDir(name string) (string, error) {
	for _, r := range c {
		dir, err := r.PackageDir(name)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, ErrPackageNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPackageNotFound, name)
}

// Path joins the root of package pkg with the slash-separated fragment rel.
func Path(r Resolver, pkg, rel string) (string, error) {
	root, err := r.PackageDir(pkg)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

func checkDir(name, dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s root %q: %v", ErrPackageNotFound, name, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s root %q is not a directory", ErrPackageNotFound, name, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s root %q: %v", ErrPackageNotFound, name, dir, err)
	}
	return abs, nil
}
