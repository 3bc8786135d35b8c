package commands

import (
	"strings"
)

type Command struct {
	Name string
	Args string
}

var aliases = map[string]string{
	"play":       "play",
	"p":          "play",
	"playnext":   "playnext",
	"pn":         "playnext",
	"skip":       "skip",
	"s":          "skip",
	"clear":      "clear",
	"queue":      "queue",
	"q":          "queue",
	"np":         "np",
	"nowplaying": "np",
	"pause":      "pause",
	"resume":     "resume",
	"disconnect": "disconnect",
	"dc":         "disconnect",
	"leave":      "disconnect",
	"remove":     "remove",
	"rm":         "remove",
	"shuffle":    "shuffle",
	"loop":       "loop",
	"search":     "search",
	"prefix":     "prefix",
	"invite":     "invite",
	"help":       "help",
	"ping":       "ping",
	"info":       "ping",
}

// Parse splits a chat message into a command when it starts with prefix and
// names a known command. Command names are case insensitive.
func Parse(content, prefix string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}

	rest := strings.TrimSpace(content[len(prefix):])
	if rest == "" {
		return Command{}, false
	}

	word, args, _ := strings.Cut(rest, " ")
	name, ok := aliases[strings.ToLower(word)]
	if !ok {
		return Command{}, false
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}, true
}
