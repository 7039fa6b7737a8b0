// Package prompts serves seed prompts from a genre-keyed directory tree:
//
//	<root>/<genre>/<name>.txt
//
// The tree is re-listed on every call so genres and prompt files can be
// added or removed without restarting the service.
package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PromptExt is the extension of prompt files inside a genre directory.
const PromptExt = ".txt"

var (
	ErrGenreNotFound      = errors.New("genre not found")
	ErrNoPromptsAvailable = errors.New("no prompts available")
	ErrReadFailure        = errors.New("failed to read prompt")
)

// Genre is one entry of the genre catalog.
type Genre struct {
	Name        string `json:"name"`
	PromptCount int    `json:"prompt_count"`
}

// Store reads prompts from a root directory.
type Store struct {
	root string
	intn func(n int) int
}

// NewStore returns a Store rooted at dir. Selection uses math/rand/v2.
func NewStore(dir string) *Store {
	return &Store{
		root: dir,
		intn: rand.IntN,
	}
}

// WithRand replaces the random source. intn must return a value in [0, n).
func (s *Store) WithRand(intn func(n int) int) *Store {
	s.intn = intn
	return s
}

func (s *Store) Root() string {
	return s.root
}

// NormalizeGenre trims the name and converts it to Unicode NFC so names typed
// on different platforms resolve to the same directory.
func NormalizeGenre(genre string) string {
	return norm.NFC.String(strings.TrimSpace(genre))
}

// genreDir resolves genre to a directory under the root. Names that could
// escape the root are treated as unknown genres.
func (s *Store) genreDir(genre string) (string, error) {
	name := NormalizeGenre(genre)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrGenreNotFound, genre)
	}

	dir := filepath.Join(s.root, name)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrGenreNotFound, name)
		}
		return "", fmt.Errorf("%w: stat %s: %v", ErrReadFailure, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrGenreNotFound, name)
	}
	return dir, nil
}

// ListPrompts returns the prompt file names of a genre in sorted order.
func (s *Store) ListPrompts(genre string) ([]string, error) {
	dir, err := s.genreDir(genre)
	if err != nil {
		return nil, err
	}
	return listPromptFiles(dir)
}

func listPromptFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrReadFailure, dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if strings.HasSuffix(entry.Name(), PromptExt) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// SelectRandomPrompt returns the content of one prompt file of genre, chosen
// uniformly at random. Every call is an independent draw.
func (s *Store) SelectRandomPrompt(genre string) (string, error) {
	dir, err := s.genreDir(genre)
	if err != nil {
		return "", err
	}

	files, err := listPromptFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: genre %q has no %s files", ErrNoPromptsAvailable, NormalizeGenre(genre), PromptExt)
	}

	chosen := files[s.intn(len(files))]
	return readPrompt(filepath.Join(dir, chosen))
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrReadFailure, filepath.Base(path), err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrReadFailure, filepath.Base(path))
	}
	return string(data), nil
}

// ListGenres returns the genre catalog sorted by name. Genres without any
// prompt files are included with a zero count.
func (s *Store) ListGenres() ([]Genre, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrReadFailure, s.root, err)
	}

	genres := make([]Genre, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files, err := listPromptFiles(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, err
		}
		genres = append(genres, Genre{
			Name:        entry.Name(),
			PromptCount: len(files),
		})
	}

	sort.Slice(genres, func(i, j int) bool {
		return genres[i].Name < genres[j].Name
	})
	return genres, nil
}

// Validate walks the whole tree and reports every problem it finds.
func (s *Store) Validate() []error {
	genres, err := s.ListGenres()
	if err != nil {
		return []error{err}
	}
	if len(genres) == 0 {
		return []error{fmt.Errorf("no genre directories under %s", s.root)}
	}

	var errs []error
	for _, g := range genres {
		if g.PromptCount == 0 {
			errs = append(errs, fmt.Errorf("genre %q: %w", g.Name, ErrNoPromptsAvailable))
			continue
		}
		files, err := s.ListPrompts(g.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, f := range files {
			content, err := readPrompt(filepath.Join(s.root, g.Name, f))
			if err != nil {
				errs = append(errs, fmt.Errorf("genre %q: %w", g.Name, err))
				continue
			}
			if strings.TrimSpace(content) == "" {
				errs = append(errs, fmt.Errorf("genre %q: %s is empty", g.Name, f))
			}
		}
	}
	return errs
}
