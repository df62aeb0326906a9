package main

import (
	"fmt"
	"time"

	"github.com/sabercore/saber/pkg/engine"
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
)

// statusBarModel shows the active model, bound corpus, token usage, and
// timing information.
type statusBarModel struct {
	eng      *engine.Engine
	sess     *engine.Session
	duration time.Duration
}

func newStatusBar(eng *engine.Engine, sess *engine.Session) statusBarModel {
	return statusBarModel{eng: eng, sess: sess}
}

func (m statusBarModel) View() string {
	params := m.sess.Parameters()

	line := " " + params.Provider + "/" + params.Model
	if cid := m.sess.CorpusID(); cid != "" {
		if c, ok := m.eng.Corpus(cid); ok {
			line += " · corpus: " + c.Name
		}
	}

	total := m.eng.UsageTotals()
	last, hasLast := m.lastUsage(params.Provider)

	switch {
	case hasLast && m.duration > 0:
		line += fmt.Sprintf(" · last: ↑%s ↓%s · total: ↑%s ↓%s · %s",
			fmtTokens(last.InputTokens),
			fmtTokens(last.OutputTokens),
			fmtTokens(total.InputTokens),
			fmtTokens(total.OutputTokens),
			fmtDuration(m.duration),
		)
	case total.Total() > 0:
		line += fmt.Sprintf(" · tokens: ↑%s ↓%s",
			fmtTokens(total.InputTokens),
			fmtTokens(total.OutputTokens),
		)
	}

	return statusStyle.Render(line)
}

// lastUsage returns the most recent token count from the named provider,
// when it reports usage.
func (m statusBarModel) lastUsage(providerID string) (usage.TokenCount, bool) {
	p, ok := m.eng.Provider(providerID)
	if !ok {
		return usage.TokenCount{}, false
	}

	ur, ok := p.(modelprovider.UsageReporter)
	if !ok {
		return usage.TokenCount{}, false
	}

	return ur.UsageTracker().Last()
}
