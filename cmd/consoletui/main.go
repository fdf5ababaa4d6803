// Command consoletui is a read-only operator dashboard over the
// Supervisor Facade's HTTP API, plus a one-shot submit-schedule
// subcommand for scripting.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/obscore/supervisor/cmd/consoletui/internal/api"
	"github.com/obscore/supervisor/cmd/consoletui/internal/ui"
	"github.com/obscore/supervisor/internal/facade"
)

func main() {
	apiURL := flag.String("api-url", "http://localhost:9100", "supervisor Facade base URL")
	flag.Parse()

	client := api.NewClient(*apiURL)

	args := flag.Args()
	if len(args) > 0 && args[0] == "submit-schedule" {
		os.Exit(int(runSubmitSchedule(client, args[1:])))
		return
	}

	m := ui.NewModel(client)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(facade.ExitGenericFailure))
	}
}

// runSubmitSchedule implements the one-shot "consoletui submit-schedule
// <path>" command: post a schedule descriptor and exit with the code a
// wrapping script can branch on (spec.md §6 exit codes).
func runSubmitSchedule(client *api.Client, args []string) facade.ExitCode {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: consoletui submit-schedule <path-to-descriptor.json>")
		return facade.ExitGenericFailure
	}

	descriptor, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading descriptor: %v\n", err)
		return facade.ExitGenericFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok, failure, err := client.SubmitSchedule(ctx, descriptor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submitting schedule: %v\n", err)
		return facade.ExitGenericFailure
	}
	if ok {
		fmt.Println("schedule accepted")
		return facade.ExitSuccess
	}

	fmt.Fprintf(os.Stderr, "schedule rejected: %s: %s\n", failure.Code, failure.Message)
	return facade.ExitCodeFor(facade.FailureCode(failure.Code))
}
