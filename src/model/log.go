package model

// ----------------------------------------------------
// ================ Config ================
// LogConfig holds configuration for the global logger
type LogConfig struct {
	Level      string `yaml:"level"`                          // debug, info, warn, error
	Format     string `yaml:"format"`                         // json or console
	Output     string `yaml:"output"`                         // stdout, stderr or file
	FilePath   string `yaml:"file_path" split_words:"true"`   // used when Output is file
	TimeFormat string `yaml:"time_format" split_words:"true"` // rfc3339, unix or iso8601
}

// DefaultLogConfig logs info and above to stderr as console text
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		FilePath:   "logs/anchorsync.log",
		TimeFormat: "rfc3339",
	}
}
