package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// handleCommand dispatches a slash command entered in the input box.
func (m *appModel) handleCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		return m, tea.Println(helpText())
	case "/quit", "/exit":
		if m.cancelBridge != nil {
			m.cancelBridge()
		}
		return m, tea.Quit
	case "/docs":
		return m.cmdDocs()
	case "/ingest":
		return m.cmdIngest(args)
	case "/corpus":
		return m.cmdCorpus(args)
	case "/provider":
		return m.cmdProvider(args)
	case "/model":
		return m.cmdModel(args)
	case "/temp":
		return m.cmdTemp(args)
	case "/save":
		return m.cmdSave()
	default:
		return m, printDim(fmt.Sprintf("unknown command %q, try /help", cmd))
	}
}

// cmdDocs lists the files in the document store.
func (m *appModel) cmdDocs() (tea.Model, tea.Cmd) {
	names, err := m.eng.Docs().List()
	if err != nil {
		return m, printError(err)
	}
	if len(names) == 0 {
		return m, printDim("no documents in " + m.eng.Docs().Dir())
	}

	var sb strings.Builder
	sb.WriteString(dimStyle.Render("documents:"))
	for _, n := range names {
		sb.WriteString("\n  " + n)
	}
	return m, tea.Println(sb.String())
}

// cmdIngest builds a corpus from store documents. The heavy lifting runs in
// a background tea.Cmd; the result arrives as ingestDoneMsg.
func (m *appModel) cmdIngest(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m, printDim("usage: /ingest <name> [files...]  (no files = whole store)")
	}
	name, files := args[0], args[1:]

	eng := m.eng
	ctx := m.ctx
	ingestCmd := func() tea.Msg {
		corpus, err := eng.BuildCorpus(ctx, name, files...)
		return ingestDoneMsg{corpus: corpus, err: err}
	}

	return m, tea.Batch(printDim("ingesting into "+name+"..."), ingestCmd)
}

// handleIngestDone reports the outcome of /ingest and binds the corpus to
// the session. A corpus may come back alongside an error when some documents
// or chunks failed; it is still usable.
func (m *appModel) handleIngestDone(msg ingestDoneMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if msg.err != nil {
		cmds = append(cmds, printError(msg.err))
	}
	if msg.corpus != nil {
		if err := m.sess.SetCorpus(msg.corpus.ID); err != nil {
			cmds = append(cmds, printError(err))
		} else {
			cmds = append(cmds, printDim(fmt.Sprintf(
				"corpus %q ready: %d chunks, bound to session", msg.corpus.Name, msg.corpus.Len())))
		}
	}
	return m, tea.Batch(cmds...)
}

// cmdCorpus lists corpora, binds one by id or name, or unbinds with "off".
func (m *appModel) cmdCorpus(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		corpora := m.eng.Corpora()
		if len(corpora) == 0 {
			return m, printDim("no corpora, build one with /ingest")
		}
		bound := m.sess.CorpusID()
		var sb strings.Builder
		sb.WriteString(dimStyle.Render("corpora:"))
		for _, c := range corpora {
			marker := " "
			if c.ID == bound {
				marker = "*"
			}
			sb.WriteString(fmt.Sprintf("\n %s %s (%s, %d chunks)", marker, c.Name, c.ID, c.Len()))
		}
		return m, tea.Println(sb.String())
	}

	if args[0] == "off" {
		if err := m.sess.SetCorpus(""); err != nil {
			return m, printError(err)
		}
		return m, printDim("corpus unbound")
	}

	id := args[0]
	// Accept a corpus name as well as an id.
	if _, ok := m.eng.Corpus(id); !ok {
		for _, c := range m.eng.Corpora() {
			if c.Name == id {
				id = c.ID
				break
			}
		}
	}

	if err := m.sess.SetCorpus(id); err != nil {
		return m, printError(err)
	}
	return m, printDim("corpus bound: " + id)
}

// cmdProvider lists providers or switches the session to a new one. A
// provider switch clears the model; /model must follow.
func (m *appModel) cmdProvider(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		current := m.sess.Parameters().Provider
		var sb strings.Builder
		sb.WriteString(dimStyle.Render("providers:"))
		for _, id := range m.eng.ProviderIDs() {
			marker := " "
			if id == current {
				marker = "*"
			}
			sb.WriteString(fmt.Sprintf("\n %s %s", marker, id))
		}
		return m, tea.Println(sb.String())
	}

	if err := m.sess.SetProvider(args[0]); err != nil {
		return m, printError(err)
	}
	return m, printDim("provider set to " + args[0] + ", choose a model with /model")
}

func (m *appModel) cmdModel(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m, printDim("usage: /model <name>")
	}

	params := m.sess.Parameters()
	params.Model = args[0]
	if err := m.sess.SetParameters(params); err != nil {
		return m, printError(err)
	}
	return m, printDim("model set to " + args[0])
}

func (m *appModel) cmdTemp(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m, printDim(fmt.Sprintf("temperature is %g", m.sess.Parameters().Temperature))
	}

	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return m, printDim("usage: /temp <value>")
	}

	params := m.sess.Parameters()
	params.Temperature = v
	if err := m.sess.SetParameters(params); err != nil {
		return m, printError(err)
	}
	return m, printDim(fmt.Sprintf("temperature set to %g", v))
}

func (m *appModel) cmdSave() (tea.Model, tea.Cmd) {
	if err := m.eng.SaveSession(m.sess.ID()); err != nil {
		return m, printError(err)
	}
	return m, printDim("session " + m.sess.ID() + " saved")
}

func printDim(s string) tea.Cmd {
	return tea.Println(dimStyle.Render("  " + s))
}

func printError(err error) tea.Cmd {
	return tea.Println("\n" + errorBlockStyle.Render("error: "+err.Error()))
}

func helpText() string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Commands:\n" +
			"  /help                      Show this help message\n" +
			"  /docs                      List documents in the store\n" +
			"  /ingest <name> [files...]  Build a corpus and bind it to the session\n" +
			"  /corpus [id|name|off]      Show, bind, or unbind a corpus\n" +
			"  /provider [id]             Show or switch the provider (clears the model)\n" +
			"  /model <name>              Set the model for this session\n" +
			"  /temp <value>              Set the sampling temperature\n" +
			"  /save                      Persist this session now\n" +
			"  /quit                      Exit the chat\n\n" +
			"Shortcuts:\n" +
			"  Enter          Submit message\n" +
			"  Alt+Enter      New line\n" +
			"  Esc            Cancel the in-flight turn\n" +
			"  Ctrl+C         Exit",
	)
}
