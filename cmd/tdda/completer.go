// cmd/tdda/completer.go

package main

import (
	"os"
	"os/exec"
	"runtime"

	"github.com/chzyer/readline"
)

func (c *cli) getCompleter() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("load",
			readline.PcItem("data"),
			readline.PcItem("constraints"),
		),
		readline.PcItem("discover"),
		readline.PcItem("verify"),
		readline.PcItem("detect"),
		readline.PcItem("save",
			readline.PcItem("constraints"),
		),
		readline.PcItem("show",
			readline.PcItem("constraints"),
		),
		readline.PcItem("fields"),
		readline.PcItem("set",
			readline.PcItem("epsilon"),
			readline.PcItem("typing",
				readline.PcItem("sloppy"),
				readline.PcItem("strict"),
			),
		),
		readline.PcItem("help"),
		readline.PcItem("clear"),
		readline.PcItem("exit"),
	)
}

// handleClear clears the terminal screen.
func (c *cli) handleClear(args string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "cls")
	default:
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	return cmd.Run()
}
