package domain

// CommandAction is an operation of the management commands.
type CommandAction string

// Management actions.
const (
	CommandIndex   CommandAction = "index"
	CommandUpdate  CommandAction = "update"
	CommandCreate  CommandAction = "create"
	CommandRebuild CommandAction = "rebuild"
	CommandList    CommandAction = "list"
	CommandDelete  CommandAction = "delete"
	CommandMigrate CommandAction = "migrate"
	CommandManage  CommandAction = "manage"
)

var commandForms = map[CommandAction][2]string{
	CommandIndex:   {"indexing", "indexed"},
	CommandUpdate:  {"updating", "updated"},
	CommandCreate:  {"creating", "created"},
	CommandRebuild: {"rebuilding", "rebuilt"},
	CommandList:    {"listing", "listed"},
	CommandDelete:  {"deleting", "deleted"},
	CommandMigrate: {"migrating", "migrated"},
	CommandManage:  {"managing", "managed"},
}

// Participle returns the present participle, e.g. "indexing".
func (a CommandAction) Participle() string {
	if f, ok := commandForms[a]; ok {
		return f[0]
	}
	return string(a) + "ing"
}

// Past returns the past tense, e.g. "indexed".
func (a CommandAction) Past() string {
	if f, ok := commandForms[a]; ok {
		return f[1]
	}
	return string(a) + "ed"
}

// BulkAction returns the bulk operation for document actions.
func (a CommandAction) BulkAction() (BulkAction, bool) {
	switch a {
	case CommandIndex:
		return ActionIndex, true
	case CommandUpdate:
		return ActionUpdate, true
	case CommandDelete:
		return ActionDelete, true
	default:
		return "", false
	}
}
