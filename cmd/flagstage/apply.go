package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/flagstage/pkg/config"
	"github.com/cuemby/flagstage/pkg/deviceconfig"
	"github.com/cuemby/flagstage/pkg/staging"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply values from a file",
	Long: `Apply namespace values from a YAML file. A file may hold several
documents separated by "---".

Examples:
  # Set values now
  flagstage apply -f values.yaml

  values.yaml:
    kind: Values
    metadata:
      namespace: core
    spec:
      values:
        feature.enabled: "true"

  # Stage values for the next boot with kind: StagedValues`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// ValuesResource is one document of an apply file
type ValuesResource struct {
	APIVersion string           `yaml:"apiVersion,omitempty"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       ValuesSpec       `yaml:"spec"`
}

type ResourceMetadata struct {
	Namespace string `yaml:"namespace"`
}

type ValuesSpec struct {
	Values map[string]string `yaml:"values"`
}

const (
	kindValues       = "Values"
	kindStagedValues = "StagedValues"
)

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	resources, err := decodeResources(f)
	if err != nil {
		return err
	}

	return withService(cmd, func(_ *config.Config, svc *deviceconfig.Service) error {
		for _, r := range resources {
			if err := applyResource(cmd.OutOrStdout(), svc, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// decodeResources parses and validates every document before anything is
// written
func decodeResources(r io.Reader) ([]ValuesResource, error) {
	var resources []ValuesResource
	dec := yaml.NewDecoder(r)
	for {
		var res ValuesResource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if res.Kind != kindValues && res.Kind != kindStagedValues {
			return nil, fmt.Errorf("unsupported resource kind: %q", res.Kind)
		}
		if res.Metadata.Namespace == "" {
			return nil, fmt.Errorf("%s: metadata.namespace is required", res.Kind)
		}
		resources = append(resources, res)
	}
	if len(resources) == 0 {
		return nil, errors.New("no resources in file")
	}
	return resources, nil
}

func applyResource(w io.Writer, svc *deviceconfig.Service, r ValuesResource) error {
	ns := r.Metadata.Namespace
	switch r.Kind {
	case kindValues:
		if !svc.SetProperties(ns, r.Spec.Values) {
			return fmt.Errorf("failed to set values in %s", ns)
		}
		fmt.Fprintf(w, "✓ %s: %d values set\n", ns, len(r.Spec.Values))
	case kindStagedValues:
		for k, v := range r.Spec.Values {
			if err := staging.Stage(svc, ns, k, v); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "✓ %s: %d values staged for next boot\n", ns, len(r.Spec.Values))
	}
	return nil
}
