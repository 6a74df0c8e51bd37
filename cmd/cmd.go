/*package cmd contains code for running scanfit in its various command
line modes */
package cmd

import (
	"fmt"

	"github.com/diffractio/scanfit/parse"
	"github.com/diffractio/scanfit/version"
)

var ModeNames map[string]Mode = map[string]Mode{
	"refine": &RefineConfig{},
	"smooth": &SmoothConfig{},
}

// Mode represents the interface used by the main binary when interacting with
// a given command line mode.
type Mode interface {
	// ReadConfig reads a mode-specific config file and stores its contents
	// within the Mode.
	ReadConfig(fname string) error
	// ExampleConfig returns the text of an example config file of this mode.
	ExampleConfig() string
	// Run executes the mode. It takes a list of tokenized command line flags
	// and an initialized GlobalConfig struct. It will return a slice of lines
	// that should be written to stdout along with an error if one occurs.
	Run(flags []string, gConfig *GlobalConfig) ([]string, error)
}

// GlobalConfig is a config file used by every mode.
type GlobalConfig struct {
	version string

	Debug bool
}

var _ Mode = &GlobalConfig{}

// ReadConfig reads a config file and returns an error, if applicable.
func (config *GlobalConfig) ReadConfig(fname string) error {
	vars := parse.NewConfigVars("config")
	vars.String(&config.version, "Version", version.SourceVersion)
	vars.Bool(&config.Debug, "Debug", false)

	if err := parse.ReadConfig(fname, vars); err != nil {
		return err
	}

	return config.validate()
}

// validate checks that all the user-generated fields of GlobalConfig are
// properly set.
func (config *GlobalConfig) validate() error {
	major, minor, patch, err := version.Parse(config.version)
	if err != nil {
		return fmt.Errorf("I couldn't parse the 'Version' variable: %s",
			err.Error())
	}
	smajor, sminor, spatch, _ := version.Parse(version.SourceVersion)
	if major != smajor || minor != sminor || patch != spatch {
		return fmt.Errorf("The 'Version' variable is set to %s, but the "+
			"version of the source is %s",
			config.version, version.SourceVersion)
	}

	return nil
}

// ExampleConfig returns an example configuration file.
func (config *GlobalConfig) ExampleConfig() string {
	return fmt.Sprintf(`[config]
# Target version of scanfit. This option merely allows scanfit to notice
# when its source and configuration files are not from the same version. It
# will not allow previous versions to be run from later versions.
#
# This variable defaults to the source version if not included.
Version = %s

# Debug switches the logger to a human-readable development format and
# enables debug-level messages. Defaults to false.
#
# Debug = false
`, version.SourceVersion)
}

// Run does nothing for GlobalConfig: it exists so that the global config file
// can be parsed and validated through the same interface as the real modes.
func (config *GlobalConfig) Run(
	flags []string, gConfig *GlobalConfig,
) ([]string, error) {
	return nil, nil
}
