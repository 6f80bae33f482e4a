/*
advisor.go Instructor feedback on the trainee's last action. Advisors are slow
and may fail; the engine never waits on them.
*/

package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ohowland/baysim/internal/pkg/eventlog"
	"github.com/ohowland/baysim/internal/pkg/topology"
)

// Fallback texts.
const (
	OfflineText     = "Advisor not configured. AI Tutor is offline."
	UnavailableText = "AI Tutor temporarily unavailable."
	EmptyText       = "No analysis available."
)

const recentLogs = 5

// Request is what an advisor sees of the session.
type Request struct {
	Nodes      topology.Nodes
	Logs       []eventlog.Entry
	LastAction string
}

// Advisor turns a session view into free text.
type Advisor interface {
	Advise(ctx context.Context, req Request) (string, error)
}

// BuildPrompt renders req as instructor prompt text.
func BuildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are a senior Substation Engineer Instructor.\n")
	sb.WriteString(fmt.Sprintf("The trainee just performed: \"%s\".\n\n", req.LastAction))

	sb.WriteString("Current Substation State:\n")
	for _, n := range req.Nodes {
		live := "DEAD"
		if n.Energized {
			live = "LIVE"
		}
		sb.WriteString(fmt.Sprintf("%s (%s): %s [%s]\n", n.Name, n.Kind, n.State, live))
	}

	sb.WriteString("\nRecent Logs:\n")
	for _, e := range eventlog.Last(req.Logs, recentLogs) {
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}

	sb.WriteString("\nAnalyze the last action.\n")
	sb.WriteString("1. Was it safe?\n")
	sb.WriteString("2. Did it violate any interlocks?\n")
	sb.WriteString("3. What should be the next step?\n\n")
	sb.WriteString("Keep it brief (max 3 sentences).\n")
	return sb.String()
}

// Offline is the advisor used when no tutor backend is configured.
type Offline struct{}

// Advise returns OfflineText.
func (Offline) Advise(context.Context, Request) (string, error) {
	return OfflineText, nil
}

// Rules is a built-in tutor that comments on the last action from the log
// text and the live state of the bay.
type Rules struct{}

// Advise returns a short comment on req.LastAction.
func (Rules) Advise(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	action := req.LastAction
	switch {
	case strings.HasPrefix(action, "SAFETY VIOLATION"):
		return "Unsafe: an isolator cannot break load current and would draw an arc. Open the circuit breaker first, then open the isolator off load.", nil
	case strings.HasPrefix(action, "INTERLOCK ERROR"):
		return "The interlock stopped an unsafe sequence. Check which device must change position first and operate that one.", nil
	case strings.HasPrefix(action, "PROTECTION TRIP"), strings.Contains(action, "TRIPPED"):
		return "The breaker was closed onto a faulted line and protection tripped it. Isolate the line and earth it before any further attempt to restore supply.", nil
	case strings.HasPrefix(action, "FAULT RECORDER"), strings.HasPrefix(action, "External Fault"):
		return "A line fault has been recorded. Keep the breaker open, open the line isolator and close the earth switch to make the line safe.", nil
	case strings.HasPrefix(action, "ALARM"):
		return "Zone protection reports a fault. Identify the faulted section before closing any breaker.", nil
	}

	for _, n := range req.Nodes {
		if n.Kind == topology.Ground && n.State == topology.Closed && n.Energized {
			return "Warning: the earth switch is closed on a live section. Open the breaker feeding it immediately.", nil
		}
	}

	lines := 0
	for _, n := range req.Nodes {
		if n.Kind == topology.Line && n.Energized {
			lines++
		}
	}
	if lines == 0 {
		return "The operation was accepted. The feeder is currently dead, so plan the next step to restore or isolate it deliberately.", nil
	}
	return "The operation was accepted and the feeder is still supplied. Confirm the next device in your switching sequence before operating it.", nil
}
