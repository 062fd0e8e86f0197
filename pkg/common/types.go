package common

// VarType is the type of a variable that constraint expressions can refer to.
type VarType string

const (
	// VarString is a string variable, for example an IP address in text form
	VarString VarType = "string"
	// VarNumber is a floating point variable
	VarNumber VarType = "number"
	// VarBool is a boolean variable
	VarBool VarType = "boolean"
)

// zero returns the value used for a declared variable that was not provided.
func (t VarType) zero() interface{} {
	switch t {
	case VarNumber:
		return 0.0
	case VarBool:
		return false
	default:
		return ""
	}
}

// LoggingConfig defines configuration options for application logging.
type LoggingConfig struct {
	// File is the path to the log file; empty logs to stdout
	File string `yaml:"file,omitempty"`

	// Level sets the logging verbosity (none, fatal, error, warn, info, debug, verbose)
	Level string `yaml:"level,omitempty"`
}
