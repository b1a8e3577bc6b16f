package quest

import "strings"

type CommandKind string

const (
	CommandAppReset CommandKind = "APP_RESET"
	CommandReload   CommandKind = "RELOAD"
	CommandNavigate CommandKind = "NAV"
)

const commandPrefix = "CMD:"

// Command is a remote instruction carried on the live message channel.
type Command struct {
	Kind CommandKind `json:"kind"`
	Path string      `json:"path,omitempty"` // only for CommandNavigate
}

// ParseCommand recognizes "CMD:APP_RESET", "CMD:RELOAD" and "CMD:NAV:<path>".
// Any other message is plain text and yields false.
func ParseCommand(msg string) (Command, bool) {
	body, ok := strings.CutPrefix(strings.TrimSpace(msg), commandPrefix)
	if !ok {
		return Command{}, false
	}
	switch {
	case body == string(CommandAppReset):
		return Command{Kind: CommandAppReset}, true
	case body == string(CommandReload):
		return Command{Kind: CommandReload}, true
	case strings.HasPrefix(body, string(CommandNavigate)+":"):
		path := strings.TrimPrefix(body, string(CommandNavigate)+":")
		if path == "" || !strings.HasPrefix(path, "/") {
			return Command{}, false
		}
		return Command{Kind: CommandNavigate, Path: path}, true
	}
	return Command{}, false
}

func (c Command) String() string {
	if c.Kind == CommandNavigate {
		return commandPrefix + string(c.Kind) + ":" + c.Path
	}
	return commandPrefix + string(c.Kind)
}
