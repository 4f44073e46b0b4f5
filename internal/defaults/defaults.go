// Package defaults provides the embedded default configuration written
// by the loanagent init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the annotated default config.yaml.
//
//go:embed config.example.yaml
var ConfigYAML []byte
