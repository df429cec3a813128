package export

import "github.com/roach88/happensbefore/internal/ir"

// Options controls what each node shows.
type Options struct {
	// Name is the graph name. Defaults to the schema name.
	Name string

	// LabelFields are appended to a node label, one per line, when the
	// event carries them.
	LabelFields []string
}

// OptionsFor returns the default options for graphs built with s: nodes
// show their message kind.
func OptionsFor(s *ir.Schema) Options {
	var opts Options
	if s == nil {
		return opts
	}
	opts.Name = s.Name
	if s.Fields.MessageKind != "" {
		opts.LabelFields = []string{s.Fields.MessageKind}
	}
	return opts
}
