package recorder

import (
	"github.com/caevv/testrecorder/internal/record"
)

// ModuleIDKey is the context attribute holding a module's identifier.
const ModuleIDKey = "MODULE_ID"

// InvocationContext describes an invocation or a module. Only the attributes
// are consumed: the module id is read from them and the whole map is packed
// into the record description.
type InvocationContext struct {
	Attributes map[string][]string `yaml:"attributes" json:"attributes"`
}

// NewModuleContext returns a context carrying the given module id.
func NewModuleContext(moduleID string) InvocationContext {
	return InvocationContext{Attributes: map[string][]string{ModuleIDKey: {moduleID}}}
}

// Attribute returns the first value of an attribute.
func (c InvocationContext) Attribute(key string) (string, bool) {
	values, ok := c.Attributes[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Description packs the attributes into an opaque record description.
func (c InvocationContext) Description() (*record.Description, error) {
	return record.PackAttributes(c.Attributes)
}

// TestDescription identifies a single test method.
type TestDescription struct {
	ClassName string `yaml:"class" json:"class"`
	TestName  string `yaml:"method" json:"method"`
}

// String returns the fully qualified test name, "class#method".
func (d TestDescription) String() string {
	return d.ClassName + "#" + d.TestName
}

// LogFile is the host's metadata for a saved log. The recorder copies it
// verbatim and never touches the file itself.
type LogFile struct {
	Path       string `yaml:"path" json:"path"`
	URL        string `yaml:"url" json:"url"`
	Text       bool   `yaml:"text" json:"text"`
	Type       string `yaml:"type" json:"type"`
	Compressed bool   `yaml:"compressed" json:"compressed"`
	Size       int64  `yaml:"size" json:"size"`
}

// Info converts the log file into an artifact descriptor.
func (f LogFile) Info() record.LogFileInfo {
	return record.LogFileInfo{
		Path:         f.Path,
		URL:          f.URL,
		IsText:       f.Text,
		LogType:      f.Type,
		IsCompressed: f.Compressed,
		Size:         f.Size,
	}
}
