package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

// assistant is the part of agent.Supervisor the prompt drives.
type assistant interface {
	Chat(ctx context.Context, text string) (string, error)
	AnalyzeImage(ctx context.Context, path string) (string, error)
}

const rule = "============================================================"

// runInteractive asks for one text message or image path, runs it through the
// supervisor and prints the reply. Image runs also list the produced artifacts.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, sup assistant, outputDir string) error {
	sc := bufio.NewScanner(in)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			return ""
		}
		return strings.TrimSpace(sc.Text())
	}

	fmt.Fprintf(out, "\n%s\n🔧 PCB Supervisor Agent\n%s\n\n", rule, rule)
	fmt.Fprintln(out, "Choose the input type:")
	fmt.Fprintln(out, "1. Text input (e.g. 'I found a Missing Hole defect...')")
	fmt.Fprintln(out, "2. Image path input (e.g. './data/board.png')")
	fmt.Fprintln(out)

	switch choice := ask("Select (1 or 2): "); choice {
	case "1":
		text := ask("\nEnter your message: ")
		if text == "" {
			return errors.New("no message entered")
		}
		fmt.Fprintf(out, "\n🚀 Processing: %s\n\n", preview(text, 50))
		reply, err := sup.Chat(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
		return nil

	case "2":
		raw := ask("\nEnter the image path: ")
		if raw == "" {
			return errors.New("no image path entered")
		}
		path, err := imagePath(raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n🚀 Sending %s to the agent...\n\n", path)
		reply, err := sup.AnalyzeImage(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
		return printArtifacts(out, outputDir)

	default:
		return fmt.Errorf("invalid choice %q, expected 1 or 2", choice)
	}
}

// imagePath strips surrounding quotes and checks the file exists.
func imagePath(raw string) (string, error) {
	path := strings.Trim(strings.TrimSpace(raw), `"'`)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("image not found at %s", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, expected an image file", path)
	}
	return path, nil
}

func printArtifacts(out io.Writer, dir string) error {
	files, err := vision.ListArtifacts(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n📂 Output images\n%s\n", rule, rule)
	if len(files) == 0 {
		fmt.Fprintf(out, "   No images in %s\n", dir)
		return nil
	}
	fmt.Fprintf(out, "   Found %d image file(s):\n", len(files))
	for _, name := range files {
		fmt.Fprintf(out, "   - %s\n", filepath.Join(dir, name))
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
