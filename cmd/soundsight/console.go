package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/soundsight/internal/dispatch"
	"github.com/1ureka/soundsight/internal/link"
	"github.com/1ureka/soundsight/internal/util"
)

// consolePresenter prints directions and captions to the terminal.
type consolePresenter struct{}

func (consolePresenter) OnDirectionChanged(d dispatch.Direction) {
	util.LogInfo("direction: %s", d)
}

func (consolePresenter) OnCaption(text string) {
	pterm.DefaultBasicText.Println(pterm.LightCyan("» ") + text)
}

// consoleEvents logs link lifecycle signals.
type consoleEvents struct{}

func (consoleEvents) OnConnected()          { util.LogSuccess("device connected") }
func (consoleEvents) OnError(reason string) { util.LogWarning("device error: %s", reason) }
func (consoleEvents) OnConnectionClosed()   { util.LogInfo("device connection closed") }

// readConsole sends every stdin line to the device until stdin closes or ctx
// is cancelled.
func readConsole(ctx context.Context, client *link.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := client.Send(line); err != nil {
			if errors.Is(err, link.ErrNotConnected) {
				util.LogWarning("not connected; line not sent")
			}
			continue
		}
		util.LogDebug("sent %q", line)
	}
}
