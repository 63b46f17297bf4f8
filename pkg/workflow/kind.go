package workflow

// Kind describes how a step is presented and what it asks of the engineer.
// It is resolved once from the step ID; nothing downstream switches on IDs.
type Kind struct {
	Name string
	Icon string
	Verb string
}

// KindGeneric is used for step IDs with no dedicated entry.
var KindGeneric = Kind{Name: "generic", Icon: "•", Verb: "Work on"}

var kinds = map[string]Kind{
	"upload":   {Name: "upload", Icon: "⇪", Verb: "Capture"},
	"analyze":  {Name: "analyze", Icon: "⌕", Verb: "Analyze"},
	"review":   {Name: "review", Icon: "☰", Verb: "Review"},
	"execute":  {Name: "execute", Icon: "▶", Verb: "Apply"},
	"verify":   {Name: "verify", Icon: "✔", Verb: "Verify"},
	"document": {Name: "document", Icon: "✎", Verb: "Document"},
}

// ResolveKind looks up the kind for a step ID.
func ResolveKind(id string) Kind {
	if k, ok := kinds[id]; ok {
		return k
	}
	return KindGeneric
}

func resolveKinds(steps []Step) {
	for i := range steps {
		steps[i].Kind = ResolveKind(steps[i].ID)
	}
}
