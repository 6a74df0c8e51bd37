/*package scanfit contains code for refining smoothly scan-varying model
parameterisations against observations.*/
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/diffractio/scanfit/cmd"
	"github.com/diffractio/scanfit/logging"
	"github.com/diffractio/scanfit/version"
)

var helpStrings = map[string]string{
	"refine": `The refine mode builds a synthetic scan-varying model, observes
its state across the scan range, and refines a second model of the same shape
against those observations. It prints the refined parameters, their estimated
standard deviations, and the truth they were fit against.`,
	"smooth": `The smooth mode tabulates the Gaussian-smoothed value of a set
of checkpoint values over a grid of scan coordinates, along with the
checkpoint weights and their sum.`,

	"config":        new(cmd.GlobalConfig).ExampleConfig(),
	"refine.config": cmd.ModeNames["refine"].ExampleConfig(),
	"smooth.config": cmd.ModeNames["smooth"].ExampleConfig(),
}

var modeDescriptions = `My help modes are:
scanfit help
scanfit help [ refine | smooth ]
scanfit help [ config | refine.config | smooth.config ]

My analysis modes are:
scanfit refine [flags] ____.config [____.refine.config]
scanfit smooth [flags] ____.config [____.smooth.config]`

func main() {
	args := os.Args
	if len(args) <= 1 {
		fmt.Fprintf(
			os.Stderr, "I was not supplied with a mode.\nFor help, type "+
				"'./scanfit help'.\n",
		)
		os.Exit(1)
	}

	if args[1] == "help" {
		switch len(args) - 2 {
		case 0:
			fmt.Println(modeDescriptions)
		case 1:
			text, ok := helpStrings[args[2]]
			if !ok {
				fmt.Printf("I don't recognize the help target '%s'\n", args[2])
			} else {
				fmt.Println(text)
			}
		default:
			fmt.Println("The help mode can only take a single argument.")
		}
		os.Exit(0)
	} else if args[1] == "version" {
		fmt.Printf("scanfit version %s\n", version.SourceVersion)
		os.Exit(0)
	}

	mode, ok := cmd.ModeNames[args[1]]
	if !ok {
		fmt.Fprintf(
			os.Stderr, "You passed me the mode '%s', which I don't "+
				"recognize.\nFor help, type './scanfit help'\n", args[1],
		)
		os.Exit(1)
	}

	flags := getFlags(args)
	config, ok := getConfig(args)
	_, gConfig, err := getGlobalConfig(args)
	if err != nil {
		log.Fatalf("Error running mode %s:\n%s\n", args[1], err.Error())
	}

	if err = logging.Init(gConfig.Debug); err != nil {
		log.Fatalf("Error running mode %s:\n%s\n", args[1], err.Error())
	}
	defer logging.Sync()

	if ok {
		if err = mode.ReadConfig(config); err != nil {
			log.Fatalf("Error running mode %s:\n%s\n", args[1], err.Error())
		}
	} else {
		log.Fatalf("Error running mode %s:\nNo mode config file provided "+
			"in command line arguments.\n", args[1])
	}

	out, err := mode.Run(flags, gConfig)
	if err != nil {
		log.Fatalf("Error running mode %s:\n%s\n", args[1], err.Error())
	}

	for i := range out {
		fmt.Println(out[i])
	}
}

// getFlags returns the flag tokens from the command line arguments.
func getFlags(args []string) []string {
	return args[2 : len(args)-configNum(args)]
}

// getGlobalConfig returns the name of the base config file from the command
// line arguments.
func getGlobalConfig(args []string) (string, *cmd.GlobalConfig, error) {
	name := os.Getenv("SCANFIT_GLOBAL_CONFIG")
	if name != "" {
		if configNum(args) > 1 {
			return "", nil, fmt.Errorf("$SCANFIT_GLOBAL_CONFIG has been " +
				"set, so you may only pass a single config file as a " +
				"parameter.")
		}

		config := &cmd.GlobalConfig{}
		if err := config.ReadConfig(name); err != nil {
			return "", nil, err
		}
		return name, config, nil
	}

	switch configNum(args) {
	case 0:
		return "", nil, fmt.Errorf("No config files provided in command " +
			"line arguments.")
	case 1:
		name = args[len(args)-1]
	case 2:
		name = args[len(args)-2]
	default:
		return "", nil, fmt.Errorf("Passed too many config files as arguments.")
	}

	config := &cmd.GlobalConfig{}
	if err := config.ReadConfig(name); err != nil {
		return "", nil, err
	}
	return name, config, nil
}

// getConfig returns the name of the mode-specific config file from the
// command line arguments.
func getConfig(args []string) (string, bool) {
	if os.Getenv("SCANFIT_GLOBAL_CONFIG") != "" && configNum(args) == 1 {
		return args[len(args)-1], true
	} else if os.Getenv("SCANFIT_GLOBAL_CONFIG") == "" &&
		configNum(args) == 2 {

		return args[len(args)-1], true
	}
	return "", false
}

// configNum returns the number of configuration files at the end of the
// argument list (up to 2).
func configNum(args []string) int {
	num := 0
	for i := len(args) - 1; i >= 0; i-- {
		if isConfig(args[i]) {
			num++
		} else {
			break
		}
	}
	return num
}

// isConfig returns true if the given string is a config file name.
func isConfig(s string) bool {
	return len(s) >= 7 && s[len(s)-7:] == ".config"
}
