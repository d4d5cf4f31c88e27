package mainboilerplate

import "github.com/jessevdk/go-flags"

// AddCommandFunc adds a sub-command to a parent Command.
type AddCommandFunc func(*flags.Command) error

// CommandRegistry builds a tree of go-flags Commands from AddCommand
// registrations, keyed on the dotted name of their parent Command.
type CommandRegistry map[string][]AddCommandFunc

// NewCommandRegistry returns an empty CommandRegistry.
func NewCommandRegistry() CommandRegistry {
	return make(CommandRegistry)
}

// AddCommand registers a Command under |parentName|, which separates
// nested commands with dots. The root Command has an empty name:
//
//	AddCommand("", "level1", ...)
//	AddCommand("level1", "level2", ...)
func (cr CommandRegistry) AddCommand(parentName, command, shortDescription, longDescription string, data interface{}) {
	cr[parentName] = append(cr[parentName], func(cmd *flags.Command) error {
		var _, err = cmd.AddCommand(command, shortDescription, longDescription, data)
		return err
	})
}

// AddCommands adds the Commands registered under |rootName| to |rootCmd|.
// If |recursive|, sub-commands of those Commands are added as well.
func (cr CommandRegistry) AddCommands(rootName string, rootCmd *flags.Command, recursive bool) error {
	for _, fn := range cr[rootName] {
		if err := fn(rootCmd); err != nil {
			return err
		}
	}
	if !recursive {
		return nil
	}

	for _, cmd := range rootCmd.Commands() {
		var name = cmd.Name
		if rootName != "" {
			name = rootName + "." + name
		}
		if err := cr.AddCommands(name, cmd, recursive); err != nil {
			return err
		}
	}
	return nil
}
