package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

type ConsoleConfig struct {
	APIBaseURL string        `arg:"--api,env:API_BASE_URL" default:"http://localhost:8080" help:"worldgen API base URL"`
	Timeout    time.Duration `arg:"--timeout,env:CONSOLE_TIMEOUT" default:"90s" help:"HTTP timeout per request"`
	Genre      string        `arg:"--genre" help:"skip the genre picker and start in this genre"`
	Prompt     string        `arg:"--prompt" help:"seed prompt for the world (default: random prompt of the genre)"`
}

func (ConsoleConfig) Description() string {
	return "Interactive console for the worldgen API: pick a genre, generate a world, then play it."
}

func main() {
	_ = godotenv.Load()

	cfg := &ConsoleConfig{}
	arg.MustParse(cfg)

	api := NewAPIClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.Timeout})

	if !api.Healthy() {
		fmt.Fprintf(os.Stderr, "Could not connect to API at %s. Please ensure the API is running.\nTry: docker-compose up -d\n", cfg.APIBaseURL)
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, api),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
