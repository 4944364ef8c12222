//go:build mage
// +build mage

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const (
	agentName = "meetsolis-agent"
	ctlName   = "meetsolisctl"
	distDir   = "dist"
)

func Build() error {
	mg.Deps(Swagger)
	fmt.Println("Building...")

	if err := os.MkdirAll(distDir, 0755); err != nil {
		return err
	}

	fmt.Println("Copying config file...")
	src, err := os.Open("config.yaml")
	if err != nil {
		return fmt.Errorf("error opening config.yaml: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(distDir, "config.yaml"))
	if err != nil {
		return fmt.Errorf("error creating dist config.yaml: %w", err)
	}
	defer dst.Close()

	if _, err = io.Copy(dst, src); err != nil {
		return fmt.Errorf("error copying config file: %w", err)
	}

	if err := exec.Command("go", "build", "-o", filepath.Join(distDir, agentName), "./cmd/agent").Run(); err != nil {
		return err
	}
	return exec.Command("go", "build", "-o", filepath.Join(distDir, ctlName), "./cmd/meetsolisctl").Run()
}

func Test() error {
	fmt.Println("Testing...")
	cmd := exec.Command("go", "test", "./...")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func Clean() {
	fmt.Println("Cleaning...")
	os.RemoveAll(distDir)
}

func Swagger() error {
	fmt.Println("Generating Swagger docs...")
	cmd := exec.Command("swag", "init", "-g", "cmd/agent/main.go")
	return cmd.Run()
}
