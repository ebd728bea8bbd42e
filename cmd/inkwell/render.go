package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"inkwell/internal/client"
	"inkwell/internal/state"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func renderError(msg string) string {
	return red("error: " + msg)
}

func renderSuccess(msg string) string {
	return green(msg)
}

// renderMessage formats one transcript entry the way it should read in a
// scrolling terminal: who spoke, in what role, and what they said.
func renderMessage(msg state.Message) string {
	timestamp := gray(msg.Timestamp.Format("15:04:05"))
	switch msg.Kind {
	case state.KindAgent:
		sender := cyan(bold(msg.Sender))
		if msg.Stage != "" {
			sender += gray(" [" + msg.Stage + "]")
		}
		return fmt.Sprintf("%s %s %s", timestamp, sender, msg.Content)
	case state.KindUser:
		return fmt.Sprintf("%s %s %s", timestamp, blue(bold("you")), msg.Content)
	case state.KindCheckpointNotice:
		return fmt.Sprintf("%s %s", timestamp, yellow(msg.Content))
	case state.KindHumanInputNotice:
		return fmt.Sprintf("%s %s", timestamp, yellow(msg.Content))
	default:
		return fmt.Sprintf("%s %s", timestamp, gray(msg.Content))
	}
}

func renderConnection(status state.ConnectionStatus) string {
	switch status {
	case state.ConnConnected:
		return green("● connected")
	case state.ConnConnecting:
		return yellow("● connecting")
	default:
		return red("● disconnected")
	}
}

func printStatus(w io.Writer, snapshot client.WorkflowSnapshot) {
	fmt.Fprintf(w, "%s %s\n", bold("workflow:"), snapshot.WorkflowID)
	fmt.Fprintf(w, "%s %s\n", bold("status:"), renderWorkflowStatus(snapshot.Status))
	if snapshot.CurrentStage != "" {
		fmt.Fprintf(w, "%s %s\n", bold("stage:"), snapshot.CurrentStage)
	}
	if len(snapshot.ActiveAgents) > 0 {
		fmt.Fprintf(w, "%s %s\n", bold("agents:"), strings.Join(snapshot.ActiveAgents, ", "))
	}
}

func renderWorkflowStatus(status string) string {
	switch strings.ToLower(status) {
	case "running":
		return green(status)
	case "paused", "waiting":
		return yellow(status)
	case "completed":
		return cyan(status)
	case "error", "failed":
		return red(status)
	default:
		return status
	}
}
