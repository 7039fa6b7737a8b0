package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/jwebster45206/worldgen/pkg/prompts"
)

type args struct {
	Dir    string `arg:"positional,env:PROMPTS_DIR" default:"prompts" help:"prompts root directory"`
	Strict bool   `arg:"--strict" help:"treat naming warnings as errors"`
}

func (args) Description() string {
	return "Validates a prompts directory: <dir>/<genre>/*.txt, non-empty UTF-8 files."
}

func main() {
	var a args
	arg.MustParse(&a)
	os.Exit(run(a, os.Stdout, os.Stderr))
}

func run(a args, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "Validating %s...\n", a.Dir)

	store := prompts.NewStore(a.Dir)
	errs := store.Validate()

	var warnings []string
	genres, err := store.ListGenres()
	if err == nil {
		for _, g := range genres {
			if !isValidGenreName(g.Name) {
				warnings = append(warnings, fmt.Sprintf("genre %q: directory names should not contain spaces or uppercase letters", g.Name))
			}
			files, err := store.ListPrompts(g.Name)
			if err != nil {
				continue
			}
			for _, f := range files {
				if strings.ContainsAny(f, " \t") {
					warnings = append(warnings, fmt.Sprintf("%s: file names should not contain whitespace", filepath.Join(g.Name, f)))
				}
			}
			fmt.Fprintf(stdout, "  %s: %d prompt(s)\n", g.Name, g.PromptCount)
		}
	}

	for _, w := range warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	for _, e := range errs {
		fmt.Fprintf(stderr, "error: %v\n", e)
	}

	if len(errs) > 0 || (a.Strict && len(warnings) > 0) {
		fmt.Fprintf(stderr, "Validation failed: %d error(s), %d warning(s)\n", len(errs), len(warnings))
		return 1
	}

	fmt.Fprintln(stdout, "Prompts directory is valid!")
	return 0
}

// genreNamePattern allows lowercase snake_case ASCII or any non-ASCII letters
// (Hangul genre names are common).
var genreNamePattern = regexp.MustCompile(`^[\p{Ll}\p{Lo}0-9_]+$`)

func isValidGenreName(name string) bool {
	return genreNamePattern.MatchString(name)
}
