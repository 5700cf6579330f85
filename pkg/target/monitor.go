package target

// CommandHandler runs a monitor command against a target with the given
// argument vector (spec.md §3 "Monitor command", §6 "Monitor command
// surface"). It returns false (without an error) when the command printed
// its own one-line failure message and wants the host to report failure;
// an error is reserved for failures the caller itself should format.
type CommandHandler func(t *Target, argv []string) (bool, error)

// Command is a single driver-registered monitor command, routed by name
// through the external qRcmd dispatcher (out of scope here — spec.md §6).
type Command struct {
	Name    string
	Help    string
	Group   string
	Handler CommandHandler
}

// Find looks up a registered command by name.
func (t *Target) Find(name string) (Command, bool) {
	for _, c := range t.commands {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Run executes the named monitor command against t.
func (t *Target) Run(name string, argv []string) (bool, error) {
	c, ok := t.Find(name)
	if !ok {
		return false, NewFault(ErrUnsupported, nil)
	}
	return c.Handler(t, argv)
}
