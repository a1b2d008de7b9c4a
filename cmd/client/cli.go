package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// command binds a REPL verb to its handler and help line.
type command struct {
	help    string
	handler func(c *cli, args string) error
}

type cli struct {
	baseURL    string
	httpClient *http.Client
	token      string
	commands   map[string]command
	rl         *readline.Instance
}

func newCLI(baseURL string, httpClient *http.Client) *cli {
	c := &cli{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
	c.commands = c.getCommands()
	return c
}

func (c *cli) getCommands() map[string]command {
	return map[string]command{
		"login":    {help: "login <password> - authenticate as admin", handler: (*cli).handleLogin},
		"logout":   {help: "logout - revoke the current admin session", handler: (*cli).handleLogout},
		"search":   {help: "search [nama=..] [nopek=..] [perusahaan=..] [penanggung=..] - substring search", handler: (*cli).handleSearch},
		"lookup":   {help: "lookup [FIELD] <value> - exact-match lookup (default field NOPEK)", handler: (*cli).handleLookup},
		"upload":   {help: "upload <path.csv|path.xlsx> - upload a participant file (admin)", handler: (*cli).handleUpload},
		"datasets": {help: "datasets - list stored datasets", handler: (*cli).handleDatasets},
		"delete":   {help: "delete <dataset-id> - remove a dataset (admin)", handler: (*cli).handleDelete},
		"export":   {help: "export <csv|xlsx> <out-path> [filters] - download filtered results", handler: (*cli).handleExport},
		"stats":    {help: "stats - dataset and field statistics", handler: (*cli).handleStats},
		"help":     {help: "help - show this help", handler: (*cli).handleHelp},
		"clear":    {help: "clear - clear the screen", handler: (*cli).handleClear},
		"exit":     {help: "exit - leave the client", handler: (*cli).handleExit},
	}
}

func (c *cli) getCompleter() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("login"),
		readline.PcItem("logout"),
		readline.PcItem("search",
			readline.PcItem("nama="),
			readline.PcItem("nopek="),
			readline.PcItem("perusahaan="),
			readline.PcItem("penanggung="),
		),
		readline.PcItem("lookup",
			readline.PcItem("NOPEK"),
			readline.PcItem("NAMA"),
			readline.PcItem("PERUSAHAAN"),
			readline.PcItem("PENANGGUNG"),
		),
		readline.PcItem("upload"),
		readline.PcItem("datasets"),
		readline.PcItem("delete", readline.PcItemDynamic(c.fetchDatasetIDs)),
		readline.PcItem("export",
			readline.PcItem("csv"),
			readline.PcItem("xlsx"),
		),
		readline.PcItem("stats"),
		readline.PcItem("help"),
		readline.PcItem("clear"),
		readline.PcItem("exit"),
	)
}

func (c *cli) run(password string) error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          colorPrompt("> "),
		HistoryFile:     "/tmp/membercheck_history.tmp",
		AutoComplete:    c.getCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer c.rl.Close()

	fmt.Println(colorInfo("Connected to ", c.baseURL))
	if password != "" {
		if err := c.handleLogin(password); err != nil {
			fmt.Println(colorErr("Automatic login failed: ", err))
		}
	} else {
		fmt.Println(colorInfo("Search is open to everyone. Use 'login <password>' for upload/delete."))
	}

	return c.mainLoop()
}

func (c *cli) mainLoop() error {
	for {
		prompt := "> "
		if c.token != "" {
			prompt = "admin> "
		}
		c.rl.SetPrompt(colorPrompt(prompt))

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

		verb, args, _ := strings.Cut(input, " ")
		cmd, found := c.commands[verb]
		if !found {
			fmt.Println(colorErr("Unknown command. Type 'help' for commands: ", verb))
			continue
		}

		startTime := time.Now()
		if err := cmd.handler(c, strings.TrimSpace(args)); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Println(colorErr("Command failed: ", err))
		}
		if verb != "clear" && verb != "help" {
			fmt.Println(colorInfo("Request time: ", time.Since(startTime).Round(time.Millisecond)))
		}
	}
	fmt.Println(colorInfo("\nExiting client. Goodbye!"))
	return nil
}

func (c *cli) handleHelp(string) error {
	verbs := make([]string, 0, len(c.commands))
	for verb := range c.commands {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)
	for _, verb := range verbs {
		fmt.Printf("  %s\n", c.commands[verb].help)
	}
	return nil
}

func (c *cli) handleClear(string) error {
	fmt.Print("\033[H\033[2J")
	return nil
}

func (c *cli) handleExit(string) error {
	return io.EOF
}
