package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Output formats for listing commands.
var outputFormats = []string{"table", "json", "yaml"}

// StandardFlags provides consistent flag definitions across commands.
type StandardFlags struct {
	// Output flags
	OutputFormat string

	// Parameter flags
	Params     []string
	ParamsFile string
	Context    []string
}

// AddStandardFlags adds the named flag groups to a command.
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "output":
			addOutputFlags(cmd, flags)
		case "params":
			addParamFlags(cmd, flags)
		case "context":
			addContextFlags(cmd, flags)
		}
	}

	return flags
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	AddFlagValidation(cmd, "output", func(format string) error {
		return ValidateChoice("output format", format, outputFormats)
	})
}

func addParamFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringArrayVarP(&flags.Params, "param", "p", nil, "Report parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&flags.ParamsFile, "params-file", "", "JSON file with report parameters")
}

func addContextFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringArrayVar(&flags.Context, "context", nil, "Value for ${name} tokens in parameter defaults as name=value")
}

// ParseParams merges --params-file and --param values; --param wins. Values
// from the file keep their JSON types, values from --param stay strings and
// are converted to the declared parameter type during generation.
func (f *StandardFlags) ParseParams() (map[string]interface{}, error) {
	params := make(map[string]interface{})

	if f.ParamsFile != "" {
		data, err := os.ReadFile(f.ParamsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file %s: %w", f.ParamsFile, err)
		}

		if err := json.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("invalid JSON in params file %s: %w", f.ParamsFile, err)
		}
	}

	pairs, err := parsePairs("param", f.Params)
	if err != nil {
		return nil, err
	}
	for k, v := range pairs {
		params[k] = v
	}

	return params, nil
}

// ParseContext returns the --context values.
func (f *StandardFlags) ParseContext() (map[string]string, error) {
	return parsePairs("context", f.Context)
}

func parsePairs(flag string, values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --%s %q, expected name=value", flag, kv)
		}
		out[name] = value
	}

	return out, nil
}

// AddFlagValidation adds validation for a specific flag.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateChoice rejects values outside choices.
func ValidateChoice(what, value string, choices []string) error {
	for _, c := range choices {
		if strings.EqualFold(value, c) {
			return nil
		}
	}

	return fmt.Errorf("invalid %s %q, must be one of: %s", what, value, strings.Join(choices, ", "))
}
