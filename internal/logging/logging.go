// Package logging configures the process-wide slog default logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

const envLogLevel = "SENTRYPIPE_LOG_LEVEL"

// Init sets the process-wide slog default handler from SENTRYPIPE_LOG_LEVEL,
// overridden by a -log-level/--log-level flag if one is present. The flag is
// consumed here, ahead of flag.Parse, because the level must take effect
// before any stage logs its first line; it returns args with that flag
// removed so the stdlib flag.FlagSet parsing the rest of the command line
// never sees it.
func Init(args []string) []string {
	remaining, flagVal := extractFlag(args, "log-level")

	levelStr := os.Getenv(envLogLevel)
	if flagVal != "" {
		levelStr = flagVal
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(levelStr),
	})))

	return remaining
}

// extractFlag pulls a "-name value" / "--name value" / "-name=value" /
// "--name=value" flag out of args, returning the remaining arguments and the
// flag's value (empty if the flag is absent).
func extractFlag(args []string, name string) (remaining []string, value string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		body, isFlag := cutFlagPrefix(arg)
		if !isFlag {
			remaining = append(remaining, arg)
			continue
		}

		switch {
		case body == name:
			if i+1 < len(args) {
				value = args[i+1]
				i++
			}
		case strings.HasPrefix(body, name+"="):
			value = strings.TrimPrefix(body, name+"=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, value
}

func cutFlagPrefix(arg string) (body string, ok bool) {
	switch {
	case strings.HasPrefix(arg, "--"):
		return arg[2:], true
	case strings.HasPrefix(arg, "-"):
		return arg[1:], true
	default:
		return arg, false
	}
}

// parseLevel maps a level name to an slog.Level, defaulting to Info for an
// empty or unrecognized value. "warning" is accepted as an alias for "warn".
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var level slog.Level
	if s == "" || level.UnmarshalText([]byte(s)) != nil {
		return slog.LevelInfo
	}
	return level
}
