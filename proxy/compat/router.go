package compat

import "strings"

// Operation names one upstream runtime endpoint mirrored by the legacy surface.
type Operation string

const (
	OpUnknown    Operation = "unknown"
	OpVersion    Operation = "version"
	OpTags       Operation = "tags"
	OpGenerate   Operation = "generate"
	OpChat       Operation = "chat"
	OpPull       Operation = "pull"
	OpPush       Operation = "push"
	OpCreate     Operation = "create"
	OpDelete     Operation = "delete"
	OpCopy       Operation = "copy"
	OpShow       Operation = "show"
	OpEmbeddings Operation = "embeddings"
)

const apiPrefix = "/api/"

// Operations lists every legacy operation in registration order.
var Operations = []Operation{
	OpVersion,
	OpTags,
	OpGenerate,
	OpChat,
	OpPull,
	OpPush,
	OpCreate,
	OpDelete,
	OpCopy,
	OpShow,
	OpEmbeddings,
}

// Route maps "/api/<op>" to its Operation. Anything else is OpUnknown.
func Route(path string) Operation {
	if !strings.HasPrefix(path, apiPrefix) {
		return OpUnknown
	}
	name := strings.TrimSuffix(strings.TrimPrefix(path, apiPrefix), "/")
	for _, op := range Operations {
		if string(op) == name {
			return op
		}
	}
	return OpUnknown
}

// Path is the upstream path for op.
func (op Operation) Path() string {
	return apiPrefix + string(op)
}

// IsLegacyPath reports whether path is under the runtime's "/api/" prefix,
// whether or not the operation is known.
func IsLegacyPath(path string) bool {
	return strings.HasPrefix(path, apiPrefix)
}
