// Package ui provides colored terminal output for the run summary printed
// at shutdown, respecting --no-color and the NO_COLOR environment variable.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	Green = color.New(color.FgGreen)
	Cyan  = color.New(color.FgCyan)
	Red   = color.New(color.FgRed)
	Bold  = color.New(color.Bold)
	Dim   = color.New(color.Faint)
)

// Init configures global color output based on the --no-color flag.
// fatih/color already honors NO_COLOR; this adds explicit CLI control.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Header prints a bold title with an underline separator.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}

// KV prints a dim-labeled key/value line.
func KV(key string, value any) {
	_, _ = Dim.Printf("%-24s", key+":")
	fmt.Printf(" %v\n", value)
}

// Success prints a green checkmark line.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Warning prints a cyan advisory line for non-fatal conditions worth flagging.
func Warning(msg string) {
	_, _ = Cyan.Println("! " + msg)
}
