// Package ffmpeg wraps the external transcoder and prober binaries. The
// argument lists built here are the bit-exact contract with the binary; they
// must be reproduced faithfully for output compatibility with existing
// manifests.
package ffmpeg

import (
	"strings"
)

// Command is one fully built transcoder invocation.
type Command struct {
	Binary string
	Args   []string
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// CommandBuilder builds transcoder commands with a fluent API.
type CommandBuilder struct {
	binary        string
	globalArgs    []string
	inputArgs     []string
	input         string
	filterArgs    []string
	filterComplex string
	outputGroups  [][]string
	logLevel      string
	overwrite     bool
}

// NewCommandBuilder creates a new command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// HideBanner hides the startup banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Stats enables the stderr progress line the supervisor parses.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// InputArgs adds arguments that must precede -i (seek offsets, read limits).
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// VideoFilter adds a -vf filter. Multiple filters are comma-joined.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// FilterComplex sets a -filter_complex graph. Mutually exclusive with
// VideoFilter; used by the clip pipeline's split-encode.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filterComplex = graph
	return b
}

// OutputGroup appends one output's arguments including its destination. A
// command may carry several groups (one decode, several encode branches).
func (b *CommandBuilder) OutputGroup(args ...string) *CommandBuilder {
	b.outputGroups = append(b.outputGroups, args)
	return b
}

// Build assembles the final argument list.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if b.filterComplex != "" {
		args = append(args, "-filter_complex", b.filterComplex)
	} else if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	for _, group := range b.outputGroups {
		args = append(args, group...)
	}

	return &Command{Binary: b.binary, Args: args}
}
