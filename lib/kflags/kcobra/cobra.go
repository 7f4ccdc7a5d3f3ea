// Package kcobra binds kflags to spf13/cobra commands.
package kcobra

import (
	"errors"
	"fmt"
	"os"

	"github.com/enfabrica/nucleus/lib/kflags"
	"github.com/enfabrica/nucleus/lib/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FlagSet adapts a pflag.FlagSet to the kflags.FlagSet interface.
type FlagSet struct {
	*pflag.FlagSet
}

func (fs *FlagSet) ByteFileVar(p *[]byte, name string, defaultFile string, usage string, mods ...kflags.ByteFileModifier) {
	fs.Var(kflags.NewByteFileFlag(p, defaultFile, mods...), name, usage)
}

func LogFlags(command *cobra.Command, log logger.Printer) {
	log("Running: %s", os.Args)
	command.Flags().VisitAll(func(flag *pflag.Flag) {
		name := "--" + flag.Name
		if flag.Shorthand != "" {
			name += " (-" + flag.Shorthand + ")"
		}
		changed := "[not changed by user]"
		if flag.Changed {
			changed = fmt.Sprintf("[changed by user - original '%s']", flag.DefValue)
		}
		log("- flag %s value '%s' %s", name, flag.Value, changed)
	})
}

type options struct {
	ehandlers []kflags.ErrorHandler
	printer   kflags.Printer
	argv      []string
	envPrefix string
	getenv    func(string) (string, bool)
}

type Modifier func(*cobra.Command, *options) error

type Modifiers []Modifier

func (mods Modifiers) Apply(c *cobra.Command, o *options) error {
	for _, m := range mods {
		if err := m(c, o); err != nil {
			return err
		}
	}
	return nil
}

func WithPrinter(log kflags.Printer) Modifier {
	return func(c *cobra.Command, o *options) error {
		o.printer = log
		return nil
	}
}

func WithErrorHandler(eh ...kflags.ErrorHandler) Modifier {
	return func(c *cobra.Command, o *options) error {
		o.ehandlers = append(o.ehandlers, eh...)
		return nil
	}
}

func WithArgs(argv []string) Modifier {
	return func(c *cobra.Command, o *options) error {
		o.argv = argv
		return nil
	}
}

// WithEnv makes every flag not set on the command line default to the
// environment variable named after the prefix and the flag, as mangled by
// kflags.DefaultEnvRemap. For example, --http-address with prefix "nucleus"
// is read from NUCLEUS_HTTP_ADDRESS.
func WithEnv(prefix string) Modifier {
	return func(c *cobra.Command, o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithEnvFiles makes the variables defined in the files, in the format read
// by godotenv, visible to WithEnv. The environment takes precedence over the
// files, and earlier files over later ones. Missing files are ignored.
func WithEnvFiles(files ...string) Modifier {
	return func(c *cobra.Command, o *options) error {
		for _, file := range files {
			vars, err := godotenv.Read(file)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return kflags.NewUsageErrorf("invalid environment file %s: %w", file, err)
			}

			getenv := o.getenv
			o.getenv = func(name string) (string, bool) {
				if value, found := getenv(name); found {
					return value, true
				}
				value, found := vars[name]
				return value, found
			}
		}
		return nil
	}
}

// PopulateFromEnv sets the flags not changed by the user from the environment.
func PopulateFromEnv(set *pflag.FlagSet, prefix string, getenv func(string) (string, bool)) error {
	var errs []error
	set.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			return
		}
		value, found := getenv(kflags.DefaultEnvRemap(prefix, flag.Name))
		if !found {
			return
		}
		if err := set.Set(flag.Name, value); err != nil {
			errs = append(errs, kflags.NewUsageErrorf("invalid value for --%s from environment: %w", flag.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Run executes the root command, mapping errors to exit codes.
//
// A kflags.UsageError prints the help screen of the failed command, a
// kflags.StatusError exits with the status code it carries.
func Run(root *cobra.Command, mods ...Modifier) {
	o := options{
		argv:   os.Args,
		getenv: os.LookupEnv,
	}

	err := Modifiers(mods).Apply(root, &o)
	if o.envPrefix != "" || o.printer != nil {
		prerun := root.PreRunE
		root.PreRunE = func(cmd *cobra.Command, args []string) error {
			if o.envPrefix != "" {
				if err := PopulateFromEnv(cmd.Flags(), o.envPrefix, o.getenv); err != nil {
					return err
				}
			}
			if o.printer != nil {
				LogFlags(cmd, logger.Printer(o.printer))
			}
			if prerun != nil {
				return prerun(cmd, args)
			}
			return nil
		}
	}

	// Cobra expects argv without argv[0], without the path of the command.
	if len(o.argv) >= 1 {
		o.argv = o.argv[1:]
	}
	root.SetArgs(o.argv)

	if err == nil {
		err = root.Execute()
	}
	if err != nil {
		cmd, _, nerr := root.Find(o.argv)
		if nerr != nil {
			cmd = root
		}

		for _, eh := range o.ehandlers {
			err = eh(err)
		}

		var ue *kflags.UsageError
		if errors.As(err, &ue) {
			root.Println(cmd.UsageString())
		}
		exit := 1
		var se *kflags.StatusError
		if ok := errors.As(err, &se); ok {
			exit = se.Code
		}

		root.Printf("ERROR: %s\n", err)
		os.Exit(exit)
	}
}
