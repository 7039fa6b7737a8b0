package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/prompts"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "Describe what you do, or pick a choice..."
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *APIClient
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string
	loading      bool

	// Current world
	sessionID string
	genre     string
	seed      string
	history   []chat.ChatMessage

	// Genre selection state
	showGenreModal bool
	genres         []prompts.Genre
	selectedGenre  int
	loadingGenres  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type chatResponseMsg struct {
	response *chat.ChatResponse
	err      error
}

type sessionMsg struct {
	session *chat.SessionResponse
	err     error
}

type genresLoadedMsg struct {
	genres []prompts.Genre
	err    error
}

type worldCreatedMsg struct {
	world *chat.WorldResponse
	err   error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

var genreTitler = cases.Title(language.English)

// genreTitle turns a directory name like "space_opera" into "Space Opera".
func genreTitle(name string) string {
	return genreTitler.String(strings.NewReplacer("_", " ", "-", " ").Replace(name))
}

func NewConsoleUI(cfg *ConsoleConfig, api *APIClient) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	m := ConsoleUI{
		config:         cfg,
		api:            api,
		textarea:       ta,
		chatViewport:   chatVp,
		metaViewport:   metaVp,
		showGenreModal: true,
		loadingGenres:  cfg.Genre == "",
	}
	if cfg.Genre != "" {
		m.loading = true
	}
	return m
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("WORLD") + "\n\n")

	content.WriteString("Genre:\n")
	content.WriteString(genreTitle(m.genre) + "\n\n")

	if m.sessionID != "" {
		content.WriteString("Session:\n")
		content.WriteString(shortID(m.sessionID) + "\n\n")
	}

	content.WriteString("Messages:\n")
	content.WriteString(fmt.Sprintf("%d total\n\n", len(m.history)))

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /seed: Seed prompt\n")
	content.WriteString("• /copy: Copy last reply\n")

	return content.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// writeChatContent renders the whole conversation for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("WORLDGEN · "+strings.ToUpper(genreTitle(m.genre))) + "\n\n")
	content.WriteString("Type your actions below. Answer with a choice number or anything you like.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, msg := range m.history {
		switch msg.Role {
		case chat.ChatRoleAgent, chat.ChatRoleSystem:
			content.WriteString(formatNarratorResponse(msg.Content, chatWidth) + "\n\n")
		case chat.ChatRoleUser:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(msg.Content, chatWidth-5) + "\n\n")
		}
	}

	if m.loading {
		content.WriteString(m.renderProgressBar() + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}
	if m.notice != "" {
		content.WriteString(m.notice + "\n\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m *ConsoleUI) resize() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.config.Genre != "" {
		return m.createWorld(m.config.Genre, m.config.Prompt)
	}
	return m.loadGenres()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	if m.showGenreModal {
		return m.updateGenreModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.err = nil
			m.notice = ""
			m.progressTick = 0

			// Show the user message right away; the server records it with the reply
			m.history = append(m.history, chat.ChatMessage{Role: chat.ChatRoleUser, Content: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendChatMessage(input), progressTick())
		}

	case chatResponseMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			// the turn was not recorded server side
			if n := len(m.history); n > 0 && m.history[n-1].Role == chat.ChatRoleUser {
				m.history = m.history[:n-1]
			}
			m.writeChatContent()
			return m, nil
		}
		m.history = append(m.history, msg.response.ChatMessage)
		m.writeChatContent()
		return m, m.refreshSession()

	case sessionMsg:
		if msg.err == nil && msg.session != nil {
			m.history = msg.session.Messages
			m.writeChatContent()
			m.metaViewport.SetContent(m.writeMetadata())
		}

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

// formatNarratorResponse wraps narration to width and prefixes it with the
// narrator label.
func formatNarratorResponse(response string, width int) string {
	prefix := AgentName + ": "
	wrapWidth := width - len(prefix)
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	wrapped := wordwrap.String(strings.TrimSpace(response), wrapWidth)
	indent := strings.Repeat(" ", len(prefix))
	lines := strings.Split(wrapped, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = indent + lines[i]
		}
	}

	return narratorStyle.Render(prefix) + strings.Join(lines, "\n")
}

// lastNarration returns the most recent narrator text, if any.
func lastNarration(history []chat.ChatMessage) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.ChatRoleAgent || history[i].Role == chat.ChatRoleSystem {
			return history[i].Content, true
		}
	}
	return "", false
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.err = nil

	switch cmd {
	case "/help":
		m.notice = titleStyle.Render("Help:") + `
• /help - Show this help
• /seed - Show the prompt this world was generated from
• /copy - Copy the last narration to the clipboard
• /end - Delete this world on the server and quit
• Ctrl+C - Quit

How to play:
• Type your actions and press Enter
• Answer with one of the numbered choices or anything else
• The narrator keeps the whole story as context`

	case "/seed":
		m.notice = titleStyle.Render("Seed prompt:") + "\n" + wordwrap.String(m.seed, max(m.chatViewport.Width-6, 20))

	case "/copy":
		text, ok := lastNarration(m.history)
		switch {
		case !ok:
			m.notice = "Nothing to copy yet."
		case clipboard.WriteAll(text) != nil:
			m.notice = errorStyle.Render("Clipboard is not available on this terminal.")
		default:
			m.notice = loadingStyle.Render("Copied last narration to the clipboard.")
		}

	case "/end":
		if err := m.api.DeleteSession(m.sessionID); err != nil {
			m.err = err
			break
		}
		return m, tea.Quit

	default:
		m.notice = errorStyle.Render("Unknown command " + cmd + ". Try /help.")
	}

	m.textarea.Reset()
	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) sendChatMessage(message string) tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		resp, err := m.api.Chat(sessionID, message)
		return chatResponseMsg{resp, err}
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		session, err := m.api.GetSession(sessionID)
		return sessionMsg{session, err}
	}
}

func (m ConsoleUI) loadGenres() tea.Cmd {
	return func() tea.Msg {
		genres, err := m.api.ListGenres()
		return genresLoadedMsg{genres, err}
	}
}

func (m ConsoleUI) createWorld(genre, prompt string) tea.Cmd {
	return func() tea.Msg {
		world, err := m.api.GenerateWorld(genre, prompt)
		return worldCreatedMsg{world, err}
	}
}

func (m ConsoleUI) updateGenreModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case genresLoadedMsg:
		m.loadingGenres = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			// genres without prompts cannot seed a world
			for _, g := range msg.genres {
				if g.PromptCount > 0 {
					m.genres = append(m.genres, g)
				}
			}
		}

	case worldCreatedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.sessionID = msg.world.SessionID
		m.genre = msg.world.Genre
		m.seed = msg.world.Prompt
		m.history = []chat.ChatMessage{{Role: chat.ChatRoleSystem, Content: msg.world.Content}}
		m.showGenreModal = false
		if m.width > 0 && m.height > 0 {
			m.resize()
		}
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		m.textarea.Focus()
		m.ready = true
		return m, textarea.Blink

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if m.loadingGenres || m.loading {
				return m, tea.Quit
			}
			m.showQuitModal = true
			return m, nil
		}
		if m.loadingGenres || m.loading || m.err != nil {
			return m, nil
		}

		switch msg.Type {
		case tea.KeyUp:
			if m.selectedGenre > 0 {
				m.selectedGenre--
			}
		case tea.KeyDown:
			if m.selectedGenre < len(m.genres)-1 {
				m.selectedGenre++
			}
		case tea.KeyEnter:
			if len(m.genres) > 0 {
				m.loading = true
				return m, m.createWorld(m.genres[m.selectedGenre].Name, "")
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if m.showGenreModal {
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave this world?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderGenreModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingGenres:
		content.WriteString(modalTitleStyle.Render("Loading Genres..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available genres..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(m.err.Error()))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Generating World..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("The narrator is building your world..."))
	case len(m.genres) == 0:
		content.WriteString(modalTitleStyle.Render("No Genres"))
		content.WriteString("\n\n")
		content.WriteString("The server has no genres with prompts. Press Ctrl+C to exit")
	default:
		content.WriteString(modalTitleStyle.Render("Select a Genre"))
		content.WriteString("\n\n")

		for i, g := range m.genres {
			label := fmt.Sprintf("%s (%d)", genreTitle(g.Name), g.PromptCount)
			if i == m.selectedGenre {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showGenreModal {
		return m.renderGenreModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 0))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
