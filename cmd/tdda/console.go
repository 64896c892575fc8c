// cmd/tdda/console.go

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"tdda-tools/internal/config"
	"tdda-tools/internal/constraints"
	"tdda-tools/internal/dataset"
	"tdda-tools/internal/detect"
	"tdda-tools/internal/discover"
	"tdda-tools/internal/persistence"
	"tdda-tools/internal/verify"
)

// The command struct includes a category for dynamic help.
type command struct {
	help     string
	handler  func(c *cli, args string) error
	category string
}

type cli struct {
	ctx context.Context
	cfg config.Config
	rl  *readline.Instance

	ds      *dataset.InMemDataset
	dsPath  string
	doc     *constraints.DatasetConstraints
	docPath string

	pols *policies

	commands          map[string]command
	multiWordCommands []string
}

func runConsole(ctx context.Context, cfg config.Config) error {
	c := &cli{ctx: ctx, cfg: cfg, pols: newPolicies(cfg)}
	c.commands = c.getCommands()

	var mwCmds []string
	for cmd := range c.commands {
		if strings.Contains(cmd, " ") {
			mwCmds = append(mwCmds, cmd)
		}
	}
	// Sort from longest to shortest for correct matching.
	sort.Slice(mwCmds, func(i, j int) bool {
		return len(mwCmds[i]) > len(mwCmds[j])
	})
	c.multiWordCommands = mwCmds

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorPrompt("tdda> "),
		HistoryFile:     "/tmp/tdda_history.tmp",
		AutoComplete:    c.getCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	c.rl = rl
	defer rl.Close()

	fmt.Println(colorInfo("Interactive TDDA console. Type 'help' for commands."))
	return c.mainLoop()
}

func (c *cli) mainLoop() error {
	for {
		input, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(input) == 0 {
					break
				}
				continue
			} else if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		cmd, args := c.getCommandAndRawArgs(input)
		handler, found := c.commands[cmd]
		if !found {
			fmt.Println(colorErr("Error: Unknown command. Type 'help' for commands: ", cmd))
			continue
		}

		startTime := time.Now()
		if err := handler.handler(c, args); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Println(colorErr("Command failed: ", err))
			continue
		}
		if cmd != "clear" && cmd != "help" {
			fmt.Println(colorInfo("Done in ", time.Since(startTime).Round(time.Millisecond)))
		}
	}
	fmt.Println(colorInfo("\nExiting console. Goodbye!"))
	return nil
}

// getCommandAndRawArgs parses user input into a command and its arguments.
func (c *cli) getCommandAndRawArgs(input string) (string, string) {
	for _, mwCmd := range c.multiWordCommands {
		if strings.HasPrefix(input, mwCmd+" ") || input == mwCmd {
			return mwCmd, strings.TrimSpace(input[len(mwCmd):])
		}
	}
	parts := strings.SplitN(input, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func (c *cli) getCommands() map[string]command {
	return map[string]command{
		"load data": {
			help:     "load data <path.csv> - load a dataset",
			category: "Input",
			handler:  (*cli).handleLoadData,
		},
		"load constraints": {
			help:     "load constraints <path.tdda> - load a constraints document",
			category: "Input",
			handler:  (*cli).handleLoadConstraints,
		},
		"discover": {
			help:     "discover - infer constraints from the loaded dataset",
			category: "Engine",
			handler:  (*cli).handleDiscover,
		},
		"verify": {
			help:     "verify - check the loaded dataset against the loaded constraints",
			category: "Engine",
			handler:  (*cli).handleVerify,
		},
		"detect": {
			help:     "detect - list the records violating the loaded constraints",
			category: "Engine",
			handler:  (*cli).handleDetect,
		},
		"save constraints": {
			help:     "save constraints <path.tdda> - write the current constraints document",
			category: "Output",
			handler:  (*cli).handleSaveConstraints,
		},
		"show constraints": {
			help:     "show constraints - print the current constraints document",
			category: "Output",
			handler:  (*cli).handleShowConstraints,
		},
		"fields": {
			help:     "fields - list the loaded dataset's fields and types",
			category: "Output",
			handler:  (*cli).handleFields,
		},
		"set epsilon": {
			help:     "set epsilon <e> - fuzzy-comparison tolerance",
			category: "Policy",
			handler:  (*cli).handleSetEpsilon,
		},
		"set typing": {
			help:     "set typing <sloppy|strict> - numeric type conflation",
			category: "Policy",
			handler:  (*cli).handleSetTyping,
		},
		"help": {
			help:     "help - show this help",
			category: "General",
			handler:  (*cli).handleHelp,
		},
		"clear": {
			help:     "clear - clear the screen",
			category: "General",
			handler:  (*cli).handleClear,
		},
		"exit": {
			help:     "exit - leave the console",
			category: "General",
			handler: func(c *cli, args string) error {
				return io.EOF
			},
		},
	}
}

func (c *cli) needData() error {
	if c.ds == nil {
		return errors.New("no dataset loaded; use: load data <path.csv>")
	}
	return nil
}

func (c *cli) needConstraints() error {
	if c.doc == nil {
		return errors.New("no constraints loaded; use 'discover' or: load constraints <path>")
	}
	return nil
}

func (c *cli) handleLoadData(args string) error {
	if args == "" {
		return errors.New("usage: load data <path.csv>")
	}
	ds, err := dataset.LoadCSV(args, dataset.CSVOptions{DistinctCap: c.cfg.DistinctCap})
	if err != nil {
		return err
	}
	c.ds, c.dsPath = ds, args
	fmt.Println(colorOK(fmt.Sprintf("√ Loaded %d records, %d fields.", ds.NumRecords(), len(ds.Fields()))))
	return nil
}

func (c *cli) handleLoadConstraints(args string) error {
	if args == "" {
		return errors.New("usage: load constraints <path.tdda>")
	}
	doc, err := persistence.LoadConstraints(args)
	if err != nil {
		return err
	}
	c.doc, c.docPath = doc, args
	fmt.Println(colorOK(fmt.Sprintf("√ Loaded %d constraints over %d fields.", doc.NumConstraints(), len(doc.Fields))))
	return nil
}

func (c *cli) handleDiscover(args string) error {
	if err := c.needData(); err != nil {
		return err
	}
	doc, err := discover.Discover(c.ctx, c.ds, c.pols.discoverOptions(c.cfg))
	if err != nil {
		return err
	}
	c.doc, c.docPath = doc, ""
	fmt.Println(colorOK(fmt.Sprintf("√ Discovered %d constraints over %d fields.", doc.NumConstraints(), len(doc.Fields))))
	return c.handleShowConstraints("")
}

func (c *cli) handleVerify(args string) error {
	if err := c.needData(); err != nil {
		return err
	}
	if err := c.needConstraints(); err != nil {
		return err
	}
	report, err := verify.Verify(c.ctx, c.ds, c.doc, c.pols.verifyPolicy(c.cfg))
	if err != nil {
		return err
	}
	renderReport(c.rl.Stdout(), report)
	return nil
}

func (c *cli) handleDetect(args string) error {
	if err := c.needData(); err != nil {
		return err
	}
	if err := c.needConstraints(); err != nil {
		return err
	}
	pol := detect.Policy{
		PerConstraint: true,
		IncludeIndex:  true,
		Epsilon:       c.pols.epsilon,
		TypeChecking:  verify.TypeCheckingSloppy,
	}
	if c.pols.strict {
		pol.TypeChecking = verify.TypeCheckingStrict
	}
	result, err := detect.Detect(c.ctx, c.ds, c.doc, pol)
	if err != nil {
		return err
	}
	renderDetection(c.rl.Stdout(), result, 25)
	return nil
}

func (c *cli) handleSaveConstraints(args string) error {
	if err := c.needConstraints(); err != nil {
		return err
	}
	if args == "" {
		return errors.New("usage: save constraints <path.tdda>")
	}
	if err := persistence.SaveConstraints(args, c.doc); err != nil {
		return err
	}
	c.docPath = args
	fmt.Println(colorOK("√ Constraints saved to ", args))
	return nil
}

func (c *cli) handleShowConstraints(args string) error {
	if err := c.needConstraints(); err != nil {
		return err
	}
	data, err := c.doc.Serialize()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func (c *cli) handleFields(args string) error {
	if err := c.needData(); err != nil {
		return err
	}
	for _, f := range c.ds.Fields() {
		fmt.Printf("  %-24s %s\n", f.Name, f.Type)
	}
	return nil
}

func (c *cli) handleSetEpsilon(args string) error {
	e, err := strconv.ParseFloat(strings.TrimSpace(args), 64)
	if err != nil || e < 0 {
		return errors.New("usage: set epsilon <non-negative number>")
	}
	c.pols.epsilon = e
	fmt.Println(colorOK("√ epsilon = ", e))
	return nil
}

func (c *cli) handleSetTyping(args string) error {
	switch strings.TrimSpace(args) {
	case "sloppy":
		c.pols.strict = false
	case "strict":
		c.pols.strict = true
	default:
		return errors.New("usage: set typing <sloppy|strict>")
	}
	fmt.Println(colorOK("√ typing = ", strings.TrimSpace(args)))
	return nil
}

func (c *cli) handleHelp(args string) error {
	byCategory := make(map[string][]string)
	for _, cmd := range c.commands {
		byCategory[cmd.category] = append(byCategory[cmd.category], cmd.help)
	}
	for _, category := range []string{"Input", "Engine", "Output", "Policy", "General"} {
		helps := byCategory[category]
		sort.Strings(helps)
		fmt.Println(colorInfo(category + ":"))
		for _, h := range helps {
			fmt.Println("  " + h)
		}
	}
	return nil
}
