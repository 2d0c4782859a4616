package domain

// FormatOption describes one entry of the output format selector.
type FormatOption struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Extension       string `json:"extension" yaml:"extension"`
	GMFormat        string `json:"gmFormat" yaml:"gm_format"`
	MIME            string `json:"mime,omitempty" yaml:"mime"`
	SupportsQuality bool   `json:"supportsQuality" yaml:"supports_quality"`
}

// SameAsInput is the format ID that keeps each file's own extension.
const SameAsInput = "same"

// KeepsExtension reports whether the option leaves the input extension as is.
func (f FormatOption) KeepsExtension() bool {
	return f.ID == SameAsInput
}
