package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nconklindev/xlport/internal/config"
	"github.com/nconklindev/xlport/internal/converter"
	"github.com/nconklindev/xlport/internal/logging"
	"github.com/nconklindev/xlport/internal/types"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

type state int

const (
	stateFilePicker state = iota
	stateOptions
	stateEditOutputDir
	stateProcessing
	stateComplete
	stateError
)

type Model struct {
	state        state
	filepicker   filepicker.Model
	selectedFile string
	fileData     *types.FileData
	format       types.Format
	outputDir    string
	dirInput     textinput.Model
	result       *types.ConversionResult
	err          error
	width        int
	height       int
	progress     progress.Model
	progressChan chan float64
	resultChan   chan conversionResultMsg
	logger       zerolog.Logger
}

type conversionResultMsg struct {
	result *types.ConversionResult
	err    error
}

type fileLoadedMsg struct {
	data *types.FileData
	err  error
}

type conversionCompleteMsg struct {
	result *types.ConversionResult
	err    error
}

type progressMsg float64

type waitForProgressMsg struct{}

func InitialModel(cfg *config.Config, logger zerolog.Logger) Model {
	fp := filepicker.New()
	fp.AllowedTypes = pickerExtensions(types.SpreadsheetExtensions)
	fp.CurrentDirectory, _ = os.Getwd()

	// Set filepicker colors to match theme
	fp.Styles.Cursor = lipgloss.NewStyle().Foreground(accent)
	fp.Styles.Symlink = lipgloss.NewStyle().Foreground(highlight)
	fp.Styles.Directory = lipgloss.NewStyle().Foreground(highlight)
	fp.Styles.File = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	fp.Styles.Permission = lipgloss.NewStyle().Foreground(muted)
	fp.Styles.Selected = lipgloss.NewStyle().Foreground(accent).Bold(true)
	fp.Styles.FileSize = lipgloss.NewStyle().Foreground(muted)

	ti := textinput.New()
	ti.Prompt = "Output directory: "
	ti.CharLimit = 4096

	return Model{
		state:      stateFilePicker,
		filepicker: fp,
		format:     cfg.Format,
		outputDir:  cfg.OutputDir,
		dirInput:   ti,
		progress:   newProgress(),
		logger:     logger,
	}
}

func (m Model) Init() tea.Cmd {
	return m.filepicker.Init()
}

// outputPath is where the selected file will be written.
func (m Model) outputPath() string {
	return types.OutputPath(m.selectedFile, m.outputDir, m.format)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Leave room for the title, subtitle and help text
		height := msg.Height - 14
		if height < 5 {
			height = 5
		}
		m.filepicker.SetHeight(height)
		m.dirInput.Width = max(msg.Width-30, 20)

		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateFilePicker:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			}

		case stateOptions:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "up", "k":
				if m.format > types.Formats[0] {
					m.format--
				}
			case "down", "j":
				if m.format < types.Formats[len(types.Formats)-1] {
					m.format++
				}
			case "tab":
				m.format = types.Formats[(int(m.format)+1)%len(types.Formats)]
			case "d":
				m.state = stateEditOutputDir
				m.dirInput.SetValue(m.outputDir)
				m.dirInput.CursorEnd()
				return m, m.dirInput.Focus()
			case "esc":
				return m.reset(), nil
			case "enter":
				m.state = stateProcessing
				return m.convertFile()
			}
			return m, nil

		case stateEditOutputDir:
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				if dir := strings.TrimSpace(m.dirInput.Value()); dir != "" {
					m.outputDir = dir
				}
				m.dirInput.Blur()
				m.state = stateOptions
				return m, nil
			case "esc":
				m.dirInput.Blur()
				m.state = stateOptions
				return m, nil
			}
			var cmd tea.Cmd
			m.dirInput, cmd = m.dirInput.Update(msg)
			return m, cmd

		case stateProcessing:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil

		case stateComplete, stateError:
			switch msg.String() {
			case "ctrl+c", "q", "esc":
				return m, tea.Quit
			case "enter":
				return m.reset(), nil
			}
			return m, nil
		}

	case fileLoadedMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Str("input", m.selectedFile).Msg("preview failed")
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.fileData = msg.data
		m.state = stateOptions
		return m, nil

	case conversionCompleteMsg:
		if msg.err != nil {
			m.logger.Error().Err(msg.err).Str("input", m.selectedFile).Msg("conversion failed")
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.result = msg.result
		m.state = stateComplete
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		if m.state == stateProcessing {
			cmd := m.progress.SetPercent(float64(msg))
			return m, tea.Batch(cmd, waitForProgress(m.progressChan, m.resultChan))
		}
		return m, nil

	case waitForProgressMsg:
		return m, waitForProgress(m.progressChan, m.resultChan)
	}

	// Handle filepicker updates
	if m.state == stateFilePicker {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)

		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			return m, m.loadFile(path)
		}

		return m, cmd
	}

	if m.state == stateEditOutputDir {
		var cmd tea.Cmd
		m.dirInput, cmd = m.dirInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

// reset returns to the file picker keeping the chosen format and output
// directory, so another file can be converted without restarting.
func (m Model) reset() Model {
	m.state = stateFilePicker
	m.selectedFile = ""
	m.fileData = nil
	m.result = nil
	m.err = nil
	m.progress = newProgress()
	return m
}

func newProgress() progress.Model {
	return progress.New(progress.WithGradient(string(accent), string(highlight)))
}

func (m Model) loadFile(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := converter.Preview(path, converter.PreviewRowLimit)
		return fileLoadedMsg{data: data, err: err}
	}
}

func (m Model) convertFile() (Model, tea.Cmd) {
	m.progressChan = make(chan float64, 100)
	m.resultChan = make(chan conversionResultMsg, 1)

	req := types.ConversionRequest{
		InputPath:  m.selectedFile,
		OutputPath: m.outputPath(),
		Format:     m.format,
	}
	ctx := logging.WithRun(context.Background(), m.logger)

	cmd := tea.Batch(
		func() tea.Msg {
			// Capture channels for the goroutine
			progressChan := m.progressChan
			resultChan := m.resultChan

			go func() {
				result, err := converter.Convert(ctx, req, progressChan)

				resultChan <- conversionResultMsg{result: result, err: err}

				close(progressChan)
				close(resultChan)
			}()

			return waitForProgressMsg{}
		},
		waitForProgress(m.progressChan, m.resultChan),
		m.progress.Init(),
	)

	return m, cmd
}

func waitForProgress(progressChan chan float64, resultChan chan conversionResultMsg) tea.Cmd {
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}

		p, ok := <-progressChan
		if !ok {
			// Progress channel closed, check result
			res, ok := <-resultChan
			if ok {
				return conversionCompleteMsg(res)
			}
			return nil
		}

		return progressMsg(p)
	}
}

func (m Model) View() string {
	switch m.state {
	case stateFilePicker:
		return m.viewFilePicker()
	case stateOptions, stateEditOutputDir:
		return m.viewOptions()
	case stateProcessing:
		return m.viewProcessing()
	case stateComplete:
		return m.viewComplete()
	case stateError:
		return m.viewError()
	}
	return ""
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("xlport - Excel to SQLite / JSON Lines"))
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render("Select an Excel file (.xlsx, .xlsm, .xltx, .xltm)"))
	s.WriteString("\n\n")
	s.WriteString(m.filepicker.View())
	s.WriteString("\n\n")
	s.WriteString(HelpStyle.Render("Press q to quit"))

	return s.String()
}

func (m Model) viewOptions() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render(filepath.Base(m.selectedFile)))
	s.WriteString("\n")
	if m.fileData != nil {
		s.WriteString(SubtitleStyle.Render(fmt.Sprintf("Sheet %q • %s • %d column(s)",
			m.fileData.SheetName, humanize.Bytes(uint64(m.fileData.Size)), len(m.fileData.Headers))))
		s.WriteString("\n")
		s.WriteString(truncate(strings.Join(m.fileData.Headers, " | "), m.width-10))
		s.WriteString("\n\n")
	}

	s.WriteString("Output format\n")
	for _, f := range types.Formats {
		line := fmt.Sprintf("  ( ) %s", f.Label())
		if f == m.format {
			line = SelectedStyle.Render(fmt.Sprintf("> (•) %s", f.Label()))
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if m.state == stateEditOutputDir {
		s.WriteString(m.dirInput.View())
	} else {
		s.WriteString(fmt.Sprintf("Output directory: %s", m.outputDir))
	}
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render("Writes " + truncate(m.outputPath(), m.width-20)))
	s.WriteString("\n")

	if m.state == stateEditOutputDir {
		s.WriteString(HelpStyle.Render("enter: save • esc: cancel"))
	} else {
		s.WriteString(HelpStyle.Render("↑/↓: format • d: output directory • enter: convert • esc: back • q: quit"))
	}

	return BoxStyle.Render(s.String())
}

func (m Model) viewProcessing() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Converting..."))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s → %s", filepath.Base(m.selectedFile), m.format.Label()))
	s.WriteString("\n\n")
	s.WriteString(m.progress.View())

	return BoxStyle.Render(s.String())
}

func (m Model) viewComplete() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("✓ Conversion Complete!"))
	s.WriteString("\n\n")

	maxPathLen := m.width - 20
	s.WriteString(fmt.Sprintf("Input:  %s\n", truncate(m.result.InputFile, maxPathLen)))
	s.WriteString(SuccessStyle.Render(fmt.Sprintf("Output: %s\n", truncate(m.result.OutputFile, maxPathLen))))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Columns: %d\n", len(m.result.Columns)))
	s.WriteString(fmt.Sprintf("Rows written: %d\n", m.result.RowsWritten))
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("enter: convert another file • q: quit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewError() string {
	var s strings.Builder

	s.WriteString(ErrorStyle.Render("✗ Conversion failed"))
	s.WriteString("\n\n")
	s.WriteString(converter.UserMessage(m.err))
	s.WriteString("\n\n")
	s.WriteString(HelpStyle.Render("enter: choose another file • q: quit"))

	return BoxStyle.Render(s.String())
}

// truncate shortens a path from the left so the file name stays visible.
func truncate(s string, maxLen int) string {
	if maxLen < 30 {
		maxLen = 30
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return "..." + string(r[len(r)-maxLen+3:])
}

// pickerExtensions expands exts to every upper/lower case spelling, since the
// file picker matches suffixes case-sensitively.
func pickerExtensions(exts []string) []string {
	var out []string
	for _, ext := range exts {
		variants := []string{""}
		for _, c := range strings.ToLower(ext) {
			lower, upper := string(c), strings.ToUpper(string(c))
			next := make([]string, 0, len(variants)*2)
			for _, v := range variants {
				next = append(next, v+lower)
				if upper != lower {
					next = append(next, v+upper)
				}
			}
			variants = next
		}
		out = append(out, variants...)
	}
	return out
}
